package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ucsmail/mail"
	"github.com/kasuganosora/ucsmail/model"
)

// MailHandler serves a character's mailbox over REST.
type MailHandler struct {
	svc   *mail.Service
	chars CharacterStore
}

// NewMailHandler creates a MailHandler.
func NewMailHandler(svc *mail.Service, chars CharacterStore) *MailHandler {
	return &MailHandler{svc: svc, chars: chars}
}

func box(char model.Character) mail.Mailbox {
	return mail.Mailbox{CharID: char.ID, Name: char.Name}
}

// List returns the headers of a character's mailbox.
// GET /api/characters/:id/mail
func (h *MailHandler) List(c *gin.Context) {
	char, ok := ownedChar(c, h.chars)
	if !ok {
		return
	}
	views, err := h.svc.ListHeaders(c.Request.Context(), nil, box(char))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mails": views})
}

func mailIDParam(c *gin.Context) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param("mail_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mail_id"})
		return 0, false
	}
	return uint32(id), true
}

// Body returns one message.
// GET /api/characters/:id/mail/:mail_id
func (h *MailHandler) Body(c *gin.Context) {
	char, ok := ownedChar(c, h.chars)
	if !ok {
		return
	}
	msgID, ok := mailIDParam(c)
	if !ok {
		return
	}
	view, found := h.svc.FetchBody(c.Request.Context(), nil, box(char), msgID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "mail not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// SetStatus changes a message's status; status 0 deletes it.
// PUT /api/characters/:id/mail/:mail_id/status
func (h *MailHandler) SetStatus(c *gin.Context) {
	char, ok := ownedChar(c, h.chars)
	if !ok {
		return
	}
	msgID, ok := mailIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Status *int `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := model.MailStatus(*req.Status)
	switch err := h.svc.SetStatus(c.Request.Context(), box(char), msgID, status); {
	case err == nil:
	case errors.Is(err, mail.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	case errors.Is(err, mail.ErrMailNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "mail not found"})
		return
	case errors.Is(err, mail.ErrStatusBackward):
		c.JSON(http.StatusConflict, gin.H{"error": "status cannot move backward"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status.String()})
}

// Send mails every recipient in the comma separated to list.
// POST /api/characters/:id/mail
func (h *MailHandler) Send(c *gin.Context) {
	char, ok := ownedChar(c, h.chars)
	if !ok {
		return
	}
	var req struct {
		To      string `json:"to" binding:"required,max=1024"`
		Subject string `json:"subject" binding:"max=255"`
		Body    string `json:"body" binding:"max=65535"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var recipients []string
	for _, r := range strings.Split(req.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no recipients"})
		return
	}
	toLine := strings.Join(recipients, ", ")

	sent := map[string]uint32{}
	failed := []string{}
	for _, r := range recipients {
		id, err := h.svc.SendMail(c.Request.Context(), r, char.Name, req.Subject, req.Body, toLine)
		if errors.Is(err, mail.ErrInvalidText) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text must not contain NUL bytes"})
			return
		}
		if err != nil {
			failed = append(failed, r)
			continue
		}
		sent[r] = id
	}
	status := http.StatusCreated
	if len(sent) == 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"sent": sent, "failed": failed})
}
