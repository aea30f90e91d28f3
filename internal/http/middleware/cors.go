package middleware

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS builds the cross-origin policy from a comma-separated origin list
// (CORS_ORIGINS); "*" allows any origin without credentials.
func CORS(origins string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "Idempotency-Key"},
		AllowCredentials: true,
	}
	trimmed := strings.TrimSpace(origins)
	if trimmed == "" || trimmed == "*" {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		for _, o := range strings.Split(trimmed, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, o)
			}
		}
	}
	return cors.New(cfg)
}
