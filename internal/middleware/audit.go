package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/union-api/internal/service"
)

// AuditContext copies the client address and user agent into the request
// context so services can stamp audit entries with them.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithRequestMeta(c.Request.Context(), service.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
