package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/union-api/pkg/errors"
	"github.com/noah-isme/union-api/pkg/response"
)

// RequireAdmin admits callers whose role is admin or who carry the admin flag.
// It must run after Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := Identity(c)
		if identity == nil {
			response.Abort(c, appErrors.ErrUnauthenticated)
			return
		}
		if !identity.CanAdminister() {
			response.Abort(c, appErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}
