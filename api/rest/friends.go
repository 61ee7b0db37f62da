package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ucsmail/friends"
	"github.com/kasuganosora/ucsmail/mail"
	"github.com/kasuganosora/ucsmail/model"
)

// FriendHandler serves a character's friend and ignore lists.
type FriendHandler struct {
	reg      *friends.Registry
	chars    CharacterStore
	presence mail.Presence
}

// NewFriendHandler creates a FriendHandler. presence may be nil.
func NewFriendHandler(reg *friends.Registry, chars CharacterStore, presence mail.Presence) *FriendHandler {
	return &FriendHandler{reg: reg, chars: chars, presence: presence}
}

type friendInfo struct {
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

type friendRequest struct {
	Name string `json:"name" form:"name" binding:"required,max=64"`
	Kind string `json:"kind" form:"kind" binding:"omitempty,oneof=friend ignore"`
}

func (r friendRequest) kind() model.FriendKind {
	if r.Kind == "ignore" {
		return model.FriendKindIgnore
	}
	return model.FriendKindFriend
}

// List handles GET /api/characters/:id/friends.
func (h *FriendHandler) List(c *gin.Context) {
	char, ok := ownedChar(c, h.chars)
	if !ok {
		return
	}
	names, ignored, err := h.reg.List(c.Request.Context(), char.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]friendInfo, len(names))
	for i, n := range names {
		out[i].Name = n
		if h.presence != nil {
			_, _, out[i].Online = h.presence.IsCharacterOnline(n)
		}
	}
	c.JSON(http.StatusOK, gin.H{"friends": out, "ignored": ignored})
}

// Add handles POST /api/characters/:id/friends.
func (h *FriendHandler) Add(c *gin.Context) {
	char, ok := ownedChar(c, h.chars)
	if !ok {
		return
	}
	var req friendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch err := h.reg.Add(c.Request.Context(), char.ID, req.kind(), req.Name); {
	case err == nil:
	case errors.Is(err, friends.ErrAlreadyListed):
		c.JSON(http.StatusConflict, gin.H{"error": "already listed"})
		return
	case errors.Is(err, friends.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": model.CanonicalName(req.Name), "kind": req.kind().String()})
}

// Remove handles DELETE /api/characters/:id/friends?name=...&kind=...
func (h *FriendHandler) Remove(c *gin.Context) {
	char, ok := ownedChar(c, h.chars)
	if !ok {
		return
	}
	var req friendRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.reg.Remove(c.Request.Context(), char.ID, req.kind(), req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}
