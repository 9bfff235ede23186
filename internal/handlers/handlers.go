package handlers

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-bookstore/internal/apperr"
	"github.com/imrishuroy/go-bookstore/internal/catalog"
	"github.com/imrishuroy/go-bookstore/internal/checkout"
	"github.com/imrishuroy/go-bookstore/internal/uploads"
	"github.com/imrishuroy/go-bookstore/internal/validation"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	headerAdminPass      = "X-Admin-Pass"
)

// HandlerConfig groups dependencies for the API routes.
type HandlerConfig struct {
	Checkout      *checkout.Service
	Catalog       *catalog.Store
	Uploads       *uploads.Signer
	AdminPassword string
}

type api struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}

// RegisterRoutes registers every API route on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	a := &api{cfg: cfg, v: validation.New()}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/orders", a.createOrder)
	r.POST("/verify-payment", a.verifyPayment)

	r.GET("/books", a.listBooks)
	r.GET("/books/:slug", a.getBook)

	admin := r.Group("/", requireAdmin(cfg.AdminPassword))
	admin.POST("/books", a.createBook)
	admin.POST("/uploads/sign", a.signUpload)
}

// requireAdmin checks the shared admin secret. An unset secret fails closed.
func requireAdmin(password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if password == "" {
			renderError(c, apperr.Configuration("admin secret not configured"))
			c.Abort()
			return
		}
		got := c.GetHeader(headerAdminPass)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(password)) != 1 {
			renderError(c, apperr.Authorization("unauthorized"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// renderError writes err as JSON with the status its kind maps to.
// Internal errors are logged and replaced by a generic body.
func renderError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)

	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind == apperr.KindInternal {
		log.Printf("[api] %s %s: internal error: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error"})
		return
	}

	switch ae.Kind {
	case apperr.KindUpstream:
		log.Printf("[api] %s %s: upstream error: %v body=%s", c.Request.Method, c.FullPath(), err, ae.Detail)
	case apperr.KindConfiguration:
		log.Printf("[api] %s %s: configuration error: %s", c.Request.Method, c.FullPath(), ae.Message)
	}
	c.JSON(status, gin.H{"success": false, "error": ae.Message, "code": ae.Kind.String()})
}
