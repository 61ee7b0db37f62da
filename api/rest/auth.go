package rest

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ucsmail/cache"
	"github.com/kasuganosora/ucsmail/config"
	"github.com/kasuganosora/ucsmail/mail"
	"github.com/kasuganosora/ucsmail/mailkey"
	mw "github.com/kasuganosora/ucsmail/middleware"
	"github.com/kasuganosora/ucsmail/model"
	"go.uber.org/zap"
)

// AuthHandler exchanges a mailbox key for a JWT so web clients can read
// mail over REST.
type AuthHandler struct {
	verifier *mailkey.Verifier
	svc      *mail.Service
	cache    cache.Cache
	sec      config.SecurityConfig
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(verifier *mailkey.Verifier, svc *mail.Service, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{verifier: verifier, svc: svc, cache: c, sec: sec, logger: logger}
}

type tokenRequest struct {
	Mailbox string `json:"mailbox" binding:"required,max=128"`
	Key     string `json:"key" binding:"required,max=64"`
}

// Token handles POST /api/auth/token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	name := model.CharacterFromMailbox(req.Mailbox)
	ip := mailkey.IPv4ToUint32(net.ParseIP(c.ClientIP()))
	if !h.verifier.VerifyCharacter(ctx, name, ip, req.Key) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid mailbox key"})
		return
	}
	char, ok := h.svc.FindCharacter(ctx, name)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid mailbox key"})
		return
	}

	token, err := h.issue(ctx, char.AccountID, char.ID, char.Name)
	if err != nil {
		h.logger.Error("issue token failed", zap.String("name", char.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"account_id": char.AccountID,
		"char_id":    char.ID,
		"name":       char.Name,
	})
}

func (h *AuthHandler) issue(ctx context.Context, accountID, charID uint32, name string) (string, error) {
	token, err := mw.GenerateToken(accountID, charID, name, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		return "", err
	}
	if err := h.cache.Set(ctx, cache.SessionKey(token), strconv.FormatUint(uint64(charID), 10), h.sec.JWTTTLH); err != nil {
		return "", err
	}
	return token, nil
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	tokenStr, ok := mw.BearerToken(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, cache.SessionKey(tokenStr))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh. The old token stops working.
func (h *AuthHandler) Refresh(c *gin.Context) {
	claims, err := mw.ParseToken(c.GetString(mw.TokenKey), h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, cache.SessionKey(c.GetString(mw.TokenKey)))

	token, err := h.issue(ctx, claims.AccountID, claims.CharID, claims.CharName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
