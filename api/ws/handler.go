package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/ucsmail/config"
	"github.com/kasuganosora/ucsmail/session"
	"go.uber.org/zap"
)

const (
	readDeadline = 60 * time.Second
	maxFrameSize = 64 << 10
)

// Handler is the Gin handler for GET /mail.
type Handler struct {
	sm       *session.Manager
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(sec config.SecurityConfig, sm *session.Manager, router *Router, logger *zap.Logger) *Handler {
	h := &Handler{
		sm:     sm,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS upgrades the connection. The client authenticates afterwards
// with a mail_login request carrying its mailbox key.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	s := session.New(conn, c.ClientIP(), h.logger)
	h.logger.Debug("mail client connected", zap.String("ip", s.IP))
	h.readPump(s, conn)
}

// readPump reads requests until the connection closes. Requests are
// handled one at a time.
func (h *Handler) readPump(s *session.Session, conn *websocket.Conn) {
	defer h.handleDisconnect(s)

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Uint32("charid", s.CharID()),
					zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		h.router.Dispatch(s, raw)
	}
}

func (h *Handler) handleDisconnect(s *session.Session) {
	s.Close()
	if s.LoggedIn() {
		h.sm.Unregister(s)
	}
	h.logger.Info("mail client disconnected",
		zap.Uint32("account_id", s.AccountID()),
		zap.Uint32("charid", s.CharID()),
		zap.String("name", s.CharName()))
}
