package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kasuganosora/ucsmail/audit"
	"github.com/kasuganosora/ucsmail/session"
	"github.com/kasuganosora/ucsmail/wire"
	"go.uber.org/zap"
)

// Request is the JSON envelope a mail client sends.
type Request struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HandlerFunc processes a decoded request payload.
type HandlerFunc func(ctx context.Context, s *session.Session, payload json.RawMessage) error

// Router dispatches incoming requests to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	public   map[string]bool
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		public:   make(map[string]bool),
		logger:   logger,
	}
}

// On registers a handler that requires a logged-in session.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
	delete(r.public, msgType)
}

// OnPublic registers a handler that runs before login.
func (r *Router) OnPublic(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
	r.public[msgType] = true
}

// Dispatch decodes raw bytes, validates seq, and invokes the handler.
func (r *Router) Dispatch(s *session.Session, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		r.logger.Warn("malformed request",
			zap.String("ip", s.IP),
			zap.Error(err))
		return
	}

	// Seq == 0 disables replay tracking.
	if req.Seq != 0 && req.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order request",
			zap.Uint32("charid", s.CharID()),
			zap.Uint64("seq", req.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if req.Seq != 0 {
		s.LastSeq = req.Seq
	}

	fn, ok := r.handlers[req.Type]
	if !ok {
		r.logger.Debug("unhandled request type",
			zap.String("type", req.Type),
			zap.Uint32("charid", s.CharID()))
		return
	}
	if !r.public[req.Type] && !s.LoggedIn() {
		sendError(s, req.Type, "not logged in")
		return
	}

	s.TraceID = uuid.NewString()
	ctx := audit.WithClientIP(audit.WithTraceID(context.Background(), s.TraceID), s.IP)

	if err := fn(ctx, s, req.Payload); err != nil {
		r.logger.Error("handler error",
			zap.String("type", req.Type),
			zap.Uint32("charid", s.CharID()),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
		sendError(s, req.Type, "request failed")
	}
}

// sendError reports a rejected request to the client.
func sendError(s *session.Session, reqType, msg string) {
	s.SendPacket(wire.OpError, wire.Encode(wire.Str(reqType), wire.Str(msg)))
}
