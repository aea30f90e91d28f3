package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/http/response"
)

// respondCoreErr maps a coreerr.Kind to its REST status and error envelope.
// Errors that are not a *coreerr.Error are treated as internal failures.
func respondCoreErr(c *gin.Context, err error) {
	kind, ok := coreerr.Of(err)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, coreerr.Internal, err)
		return
	}
	response.RespondError(c, coreerr.HTTPStatus(kind), kind, err)
}
