package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-bookstore/internal/apperr"
	"github.com/imrishuroy/go-bookstore/internal/validation"
)

func (a *api) signUpload(c *gin.Context) {
	if a.cfg.Uploads == nil {
		renderError(c, apperr.Configuration("upload service not configured"))
		return
	}
	var req validation.SignUploadRequest
	// an empty body means defaults
	if c.Request.ContentLength != 0 {
		if err := validation.BindAndValidate(c, &req, a.v); err != nil {
			return
		}
	}
	sig, err := a.cfg.Uploads.Sign(req.Folder, req.ResourceType)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}
