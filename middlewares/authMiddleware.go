package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/meditech/medlink_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token when one is present and stashes
// the claims in the request context. Requests without a token pass through;
// the per-route guards decide what needs authentication.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		validate, err := utils.JwtValidate(token)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, _ := validate.Claims.(*utils.JwtCustomClaim)
		ctx := utils.SetUserIdInContext(c.Request.Context(), claim.ID)
		ctx = utils.SetIsAdminInContext(ctx, strings.EqualFold(claim.Role, "admin"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth rejects requests that carry no validated user. The destructive
// relink path additionally checks the admin claim in its handler.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
