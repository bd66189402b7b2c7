package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"codrive/config"
	"codrive/utils"
)

// AuthMiddleware validates the bearer token and places the principal in
// the request context. Tokens are issued by the upstream auth layer; no
// user lookup happens here.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, "Authorization header required")
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			utils.UnauthorizedResponse(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		principal, err := utils.ValidateToken(tokenParts[1], cfg.JWTSecret)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid or expired token")
			c.Abort()
			return
		}

		utils.SetPrincipalInContext(c, principal)
		c.Next()
	}
}

// AdminMiddleware requires an authenticated principal holding the admin
// role. Used for the sync trigger and quota endpoints.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := utils.GetPrincipalFromContext(c)
		if !ok {
			utils.UnauthorizedResponse(c, "")
			c.Abort()
			return
		}
		for _, role := range principal.Roles {
			if role == "admin" {
				c.Next()
				return
			}
		}
		utils.ForbiddenResponse(c, "Admin access required")
		c.Abort()
	}
}
