package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/threadline/dialoguecore/internal/coreerr"
)

type APIError struct {
	Message string      `json:"message"`
	Code    coreerr.Kind `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code coreerr.Kind, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
