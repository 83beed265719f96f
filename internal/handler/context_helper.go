package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registration-api/internal/middleware"
	"github.com/noah-isme/sis-registration-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) *models.Actor {
	return claimsFromContext(c).Actor()
}

func requestContext(c *gin.Context) *models.RequestContext {
	return &models.RequestContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
	}
}
