package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-bookstore/internal/apperr"
	"github.com/imrishuroy/go-bookstore/internal/catalog"
	"github.com/imrishuroy/go-bookstore/internal/validation"
)

func intParam(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.Validation(name + " must be a positive integer")
	}
	return n, nil
}

func (a *api) listBooks(c *gin.Context) {
	page, err := intParam(c, "page", 1)
	if err != nil {
		renderError(c, err)
		return
	}
	limit, err := intParam(c, "limit", catalog.DefaultLimit)
	if err != nil {
		renderError(c, err)
		return
	}

	res, err := a.cfg.Catalog.List(c.Request.Context(), catalog.Query{
		Text:     c.Query("q"),
		Category: c.Query("category"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		renderError(c, apperr.Internal("list books", err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *api) getBook(c *gin.Context) {
	book, err := a.cfg.Catalog.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		renderError(c, apperr.Internal("get book", err))
		return
	}
	if book == nil {
		renderError(c, apperr.NotFound("book not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"book": book})
}

func (a *api) createBook(c *gin.Context) {
	var req validation.CreateBookRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}

	book := &catalog.Book{
		Slug:            req.Slug,
		Title:           req.Title,
		Authors:         req.Authors,
		ISBN:            req.ISBN,
		Description:     req.Description,
		Price:           *req.Price,
		MRP:             req.MRP,
		DiscountPercent: req.DiscountPercent,
		Currency:        req.Currency,
		Category:        req.Category,
		Language:        req.Language,
		CoverImage:      req.CoverImage,
		PDFPreview:      req.PDFPreview,
		Stock:           req.Stock,
	}
	err := a.cfg.Catalog.Create(c.Request.Context(), book)
	switch {
	case errors.Is(err, catalog.ErrSlugExists):
		renderError(c, apperr.Conflict("a book with this slug already exists"))
		return
	case errors.Is(err, catalog.ErrInvalidBook):
		renderError(c, apperr.Validation(err.Error()))
		return
	case err != nil:
		renderError(c, apperr.Internal("create book", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"book": book})
}
