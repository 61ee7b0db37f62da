package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ucsmail/mail"
	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/scheduler"
	"github.com/kasuganosora/ucsmail/session"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	sm     *session.Manager
	svc    *mail.Service
	sched  *scheduler.Scheduler
	trail  AuditTrail
	logger *zap.Logger
}

// AuditTrail reads back recorded mail mutations.
type AuditTrail interface {
	Recent(ctx context.Context, charID uint32, limit int) ([]model.AuditLog, error)
}

// NewAdminHandler creates an AdminHandler. trail may be nil.
func NewAdminHandler(sm *session.Manager, svc *mail.Service, sched *scheduler.Scheduler, trail AuditTrail, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{sm: sm, svc: svc, sched: sched, trail: trail, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_sessions": h.sm.Count(),
		"mail_sent":       h.svc.Metrics().MailSent(),
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ListSessions returns a snapshot of all logged-in mail sessions.
// GET /api/admin/sessions
func (h *AdminHandler) ListSessions(c *gin.Context) {
	sessions := h.sm.All()
	type sessionInfo struct {
		CharID    uint32   `json:"char_id"`
		CharName  string   `json:"char_name"`
		AccountID uint32   `json:"account_id"`
		IP        string   `json:"ip"`
		Mailboxes []string `json:"mailboxes"`
	}
	result := make([]sessionInfo, 0, len(sessions))
	for _, s := range sessions {
		boxes := s.Mailboxes()
		names := make([]string, len(boxes))
		for i, b := range boxes {
			names[i] = b.Name
		}
		result = append(result, sessionInfo{
			CharID:    s.CharID(),
			CharName:  s.CharName(),
			AccountID: s.AccountID(),
			IP:        s.IP,
			Mailboxes: names,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": result, "count": len(result)})
}

// Kick forcibly disconnects a mail session by character ID.
// POST /api/admin/kick/:id
func (h *AdminHandler) Kick(c *gin.Context) {
	charID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	s := h.sm.Get(uint32(charID))
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "character not online"})
		return
	}
	s.Close()
	h.logger.Info("admin kicked mail session", zap.Uint64("charid", charID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Expire runs the retention rules now, ignoring the cross-instance lock.
// POST /api/admin/mail/expire
func (h *AdminHandler) Expire(c *gin.Context) {
	res := h.svc.Expire(c.Request.Context())
	h.logger.Info("admin expired mail",
		zap.Int64("trash", res.Trash), zap.Int64("read", res.Read), zap.Int64("unread", res.Unread))
	c.JSON(http.StatusOK, res)
}

// ListSchedulerTasks returns every registered ticker task with run stats.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// Audit returns recent audit entries, optionally for one character.
// GET /api/admin/audit?char_id=&limit=
func (h *AdminHandler) Audit(c *gin.Context) {
	if h.trail == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "audit disabled"})
		return
	}
	var q struct {
		CharID uint32 `form:"char_id"`
		Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := h.trail.Recent(c.Request.Context(), q.CharID, q.Limit)
	if err != nil {
		h.logger.Error("read audit trail failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints are disabled (503) so the server
// cannot be deployed without protection by accident.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
