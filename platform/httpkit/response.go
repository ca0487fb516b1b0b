package httpkit

import (
	"net/http"

	"itou_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func Created(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// Error writes an ErrorResponse with an explicit status, for failures
// detected before reaching a service (binding, path params).
func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// HandleError reports whether err was non-nil and, if so, writes it.
// Typed apperr errors anywhere in the chain keep their status and message;
// anything else is recorded on the gin context and answered with a bare 500.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	if appErr, ok := apperr.As(err); ok {
		Error(c, appErr.HTTPStatus(), appErr.Message, appErr.Details)
		return true
	}

	_ = c.Error(err)
	Error(c, http.StatusInternalServerError, "internal server error", nil)
	return true
}
