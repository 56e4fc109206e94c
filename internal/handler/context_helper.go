package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/union-api/internal/middleware"
	"github.com/noah-isme/union-api/internal/models"
)

func identityFromContext(c *gin.Context) *models.Identity {
	return middleware.Identity(c)
}
