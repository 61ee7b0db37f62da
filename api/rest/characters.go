package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/ucsmail/middleware"
	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/store"
)

// CharacterStore looks characters up for ownership checks.
type CharacterStore interface {
	CharacterByID(ctx context.Context, id uint32) (model.Character, error)
}

// ownedChar parses :id and checks that the character belongs to the
// caller's account. On failure it writes the response and returns false.
func ownedChar(c *gin.Context, chars CharacterStore) (model.Character, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return model.Character{}, false
	}
	char, err := chars.CharacterByID(c.Request.Context(), uint32(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return model.Character{}, false
	}
	if char.AccountID != mw.GetAccountID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return model.Character{}, false
	}
	return char, true
}
