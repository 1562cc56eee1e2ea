package api

import (
	"net/http"

	apperrors "github.com/plew99/cytokines-metaanalysis/internal/errors"

	"github.com/gin-gonic/gin"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Code      string `json:"code"`
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Invariant string `json:"invariant,omitempty"`
}

// respondError classifies err and writes it with the matching status
func (s *Server) respondError(c *gin.Context, err error) {
	appErr := apperrors.FromDomain(err)
	status := apperrors.HTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Code:      appErr.Code,
		Error:     appErr.Error(),
		Field:     appErr.Field,
		Invariant: appErr.Invariant,
	})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.respondError(c, apperrors.WithCode(apperrors.CodeInvalidInput, err))
}
