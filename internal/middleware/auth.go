package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/union-api/internal/models"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
	"github.com/noah-isme/union-api/pkg/logger"
	"github.com/noah-isme/union-api/pkg/response"
)

// ContextIdentityKey is the gin context key storing the resolved *models.Identity.
const ContextIdentityKey = "identity"

type authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
}

// Authenticate requires a bearer credential and stores the caller identity.
func Authenticate(auth authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, appErrors.ErrUnauthenticated)
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid authorization header"))
			return
		}

		identity, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(err)
			response.Abort(c, err)
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// OptionalAuthenticate attaches the identity when a valid credential is sent
// and lets the request through otherwise.
func OptionalAuthenticate(auth authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if identity, err := auth.Authenticate(c.Request.Context(), token); err == nil {
				setIdentity(c, identity)
			}
		}
		c.Next()
	}
}

// Identity returns the caller stored by Authenticate, or nil.
func Identity(c *gin.Context) *models.Identity {
	value, exists := c.Get(ContextIdentityKey)
	if !exists {
		return nil
	}
	identity, _ := value.(*models.Identity)
	return identity
}

func setIdentity(c *gin.Context, identity *models.Identity) {
	c.Set(ContextIdentityKey, identity)
	c.Set(logger.CallerIDKey, identity.ID)
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
