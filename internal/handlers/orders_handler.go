package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-bookstore/internal/checkout"
	"github.com/imrishuroy/go-bookstore/internal/orders"
	"github.com/imrishuroy/go-bookstore/internal/validation"
)

func (a *api) createOrder(c *gin.Context) {
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	in := checkout.CreateOrderInput{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Currency:       req.Currency,
		Metadata:       req.Metadata,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, orders.LineItem{
			BookID:   it.BookID,
			Slug:     it.Slug,
			Title:    it.Title,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}
	if req.Address != nil {
		in.Address = orders.Address(*req.Address)
	}

	res, err := a.cfg.Checkout.CreateOrder(c.Request.Context(), in)
	if err != nil {
		renderError(c, err)
		return
	}
	if res.Replayed {
		c.Header(headerReplayed, "true")
	}
	c.JSON(res.Status, res.Response)
}

func (a *api) verifyPayment(c *gin.Context) {
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}

	res, err := a.cfg.Checkout.VerifyPayment(c.Request.Context(), checkout.VerifyPaymentInput{
		OrderID:        req.OrderID,
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	if !res.Success {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "signature verification failed",
			"order":   res.Order,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": res.Order})
}
