package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/threadline/dialoguecore/internal/pkg/ctxutil"
)

// AttachRequestContext captures the caller-supplied user_id (query param or
// X-User-Id header) so downstream logging can attribute a request without
// every handler re-parsing it.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("user_id")
		if raw == "" {
			raw = c.GetHeader("X-User-Id")
		}
		rd := &ctxutil.RequestData{}
		if id, err := uuid.Parse(raw); err == nil {
			rd.UserID = id
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}
