package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ucsmail/cache"
	"github.com/kasuganosora/ucsmail/config"
)

const (
	AccountIDKey = "account_id"
	CharIDKey    = "char_id"
	TokenKey     = "token"
)

// Auth validates the Bearer JWT token and checks that its session is still
// recorded in the cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr, ok := BearerToken(ctx)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, cache.SessionKey(tokenStr))
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(AccountIDKey, claims.AccountID)
		ctx.Set(CharIDKey, claims.CharID)
		ctx.Set(TokenKey, tokenStr)
		ctx.Next()
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	tok := strings.TrimPrefix(header, "Bearer ")
	return tok, tok != ""
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) uint32 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(uint32)
	}
	return 0
}

// GetCharID retrieves the character the token was issued for.
func GetCharID(c *gin.Context) uint32 {
	if v, exists := c.Get(CharIDKey); exists {
		return v.(uint32)
	}
	return 0
}
