package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/anyrate/utils"
)

const (
	// ContextVisitorKey is where handlers read the authenticated visitor ID.
	ContextVisitorKey = "visitor_id"
	// ContextProviderKey carries the identity provider of the session.
	ContextProviderKey = "visitor_provider"
)

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// SessionRequired validates the visitor session JWT and stores the visitor
// identity on the context.
func SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			utils.Error(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}
		if utils.IsTokenBlacklisted(token) {
			utils.Error(c, http.StatusUnauthorized, "session revoked")
			c.Abort()
			return
		}
		claims, err := utils.ParseToken(token)
		if err != nil {
			utils.Error(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextVisitorKey, claims.VisitorID)
		c.Set(ContextProviderKey, claims.Provider)
		c.Next()
	}
}

// AdminRequired only admits tokens carrying the admin claim. The check is
// purely local so a bad token never reaches the database.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			utils.Error(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}
		if utils.IsTokenBlacklisted(token) {
			utils.Error(c, http.StatusUnauthorized, "session revoked")
			c.Abort()
			return
		}
		claims, err := utils.ParseToken(token)
		if err != nil || !claims.Admin {
			utils.Error(c, http.StatusForbidden, "admin access required")
			c.Abort()
			return
		}
		c.Set(ContextVisitorKey, claims.VisitorID)
		c.Next()
	}
}

// VisitorID returns the visitor stored by SessionRequired.
func VisitorID(c *gin.Context) string {
	v, _ := c.Get(ContextVisitorKey)
	s, _ := v.(string)
	return s
}
