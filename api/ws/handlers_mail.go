package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/kasuganosora/ucsmail/config"
	"github.com/kasuganosora/ucsmail/mail"
	"github.com/kasuganosora/ucsmail/mailkey"
	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/session"
	"github.com/kasuganosora/ucsmail/wire"
	"go.uber.org/zap"
)

// MailHandlers serves login and the mailbox requests.
type MailHandlers struct {
	svc      *mail.Service
	verifier *mailkey.Verifier
	sm       *session.Manager
	cfg      *config.MailConfig
	limiter  LoginLimiter
	logger   *zap.Logger
}

// LoginLimiter throttles login attempts per client address.
type LoginLimiter interface {
	Allow(key string) bool
}

// NewMailHandlers creates MailHandlers.
func NewMailHandlers(svc *mail.Service, verifier *mailkey.Verifier, sm *session.Manager, cfg *config.MailConfig, logger *zap.Logger) *MailHandlers {
	return &MailHandlers{svc: svc, verifier: verifier, sm: sm, cfg: cfg, logger: logger}
}

// SetLoginLimiter throttles mail_login per client IP. Without one every
// attempt is checked.
func (mh *MailHandlers) SetLoginLimiter(l LoginLimiter) {
	mh.limiter = l
}

// RegisterHandlers registers all mail request handlers on the router.
func (mh *MailHandlers) RegisterHandlers(r *Router) {
	r.OnPublic("mail_login", mh.HandleLogin)
	r.On("get_headers", mh.HandleGetHeaders)
	r.On("get_body", mh.HandleGetBody)
	r.On("send_mail", mh.HandleSendMail)
	r.On("set_status", mh.HandleSetStatus)
}

type loginReq struct {
	Mailbox string `json:"mailbox"`
	Key     string `json:"key"`
}

// HandleLogin verifies the mailbox key and binds the session to every
// character of the account.
func (mh *MailHandlers) HandleLogin(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	var req loginReq
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(s, "mail_login", "malformed payload")
		return nil
	}
	if s.LoggedIn() {
		sendError(s, "mail_login", "already logged in")
		return nil
	}

	if mh.limiter != nil && !mh.limiter.Allow(s.IP) {
		mh.logger.Warn("mail login throttled", zap.String("ip", s.IP))
		s.SendPacket(wire.OpMailLogin, loginReply(false, "", nil))
		return nil
	}

	name := model.CharacterFromMailbox(req.Mailbox)
	ip := mailkey.IPv4ToUint32(net.ParseIP(s.IP))
	if name == "" || !mh.verifier.VerifyCharacter(ctx, name, ip, req.Key) {
		s.SendPacket(wire.OpMailLogin, loginReply(false, "", nil))
		return nil
	}

	acct, ok := mh.svc.FindAccount(ctx, name)
	if !ok {
		s.SendPacket(wire.OpMailLogin, loginReply(false, "", nil))
		return nil
	}
	s.Login(acct.ID, acct.Characters)
	mh.sm.Register(s)
	s.SendPacket(wire.OpMailLogin, loginReply(true, mh.cfg.Prefix, acct.Characters))
	mh.logger.Info("mail login",
		zap.String("name", s.CharName()),
		zap.Uint32("account_id", acct.ID),
		zap.String("ip", s.IP))
	return nil
}

func loginReply(ok bool, prefix string, boxes []mail.CharacterRef) []byte {
	if !ok {
		return wire.Encode(wire.Int(0), wire.Int(0))
	}
	fields := make([]wire.Field, 0, 2+2*len(boxes))
	fields = append(fields, wire.Int(1), wire.Int(int64(len(boxes))))
	for _, b := range boxes {
		fields = append(fields, wire.Join(prefix), wire.Str(b.Name))
	}
	return wire.Encode(fields...)
}

type mailboxReq struct {
	Mailbox string `json:"mailbox"`
	MsgID   uint32 `json:"msg_id"`
}

// mailbox resolves the requested mailbox, defaulting to slot 0.
func mailbox(s *session.Session, address string) (mail.Mailbox, bool) {
	if address == "" {
		boxes := s.Mailboxes()
		if len(boxes) == 0 {
			return mail.Mailbox{}, false
		}
		return mail.Mailbox{Slot: 0, CharID: boxes[0].ID, Name: boxes[0].Name}, true
	}
	return s.Mailbox(address)
}

// HandleGetHeaders sends the header listing of one mailbox.
func (mh *MailHandlers) HandleGetHeaders(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	var req mailboxReq
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			sendError(s, "get_headers", "malformed payload")
			return nil
		}
	}
	box, ok := mailbox(s, req.Mailbox)
	if !ok {
		sendError(s, "get_headers", "unknown mailbox")
		return nil
	}
	_, err := mh.svc.ListHeaders(ctx, s, box)
	return err
}

// HandleGetBody sends one message body.
func (mh *MailHandlers) HandleGetBody(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	var req mailboxReq
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(s, "get_body", "malformed payload")
		return nil
	}
	box, ok := mailbox(s, req.Mailbox)
	if !ok {
		sendError(s, "get_body", "unknown mailbox")
		return nil
	}
	if _, ok := mh.svc.FetchBody(ctx, s, box, req.MsgID); !ok {
		sendError(s, "get_body", "message not found")
	}
	return nil
}

type sendMailReq struct {
	Mailbox string `json:"mailbox"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// HandleSendMail delivers a message to every recipient in the comma
// separated To list and reports the ones that failed.
func (mh *MailHandlers) HandleSendMail(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	var req sendMailReq
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(s, "send_mail", "malformed payload")
		return nil
	}
	box, ok := mailbox(s, req.Mailbox)
	if !ok {
		sendError(s, "send_mail", "unknown mailbox")
		return nil
	}

	recipients := splitRecipients(req.To)
	if len(recipients) == 0 {
		sendError(s, "send_mail", "no recipients")
		return nil
	}
	// Every copy carries the full recipient list.
	toLine := strings.Join(recipients, ", ")

	failed := []string{}
	for _, rcpt := range recipients {
		_, err := mh.svc.SendMail(ctx, rcpt, box.Name, req.Subject, req.Body, toLine)
		if errors.Is(err, mail.ErrInvalidText) {
			sendError(s, "send_mail", "text must not contain NUL bytes")
			return nil
		}
		if err != nil {
			failed = append(failed, rcpt)
		}
	}
	s.SendPacket(wire.OpMailDeliveryStatus, mail.DeliveryStatusPacket(box.Slot, failed))
	return nil
}

func splitRecipients(to string) []string {
	var out []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

type setStatusReq struct {
	MsgIDs []uint32 `json:"msg_ids"`
	Status int      `json:"status"`
}

// HandleSetStatus changes the status of messages owned by one of the
// session's mailboxes. Status 0 deletes them.
func (mh *MailHandlers) HandleSetStatus(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	var req setStatusReq
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(s, "set_status", "malformed payload")
		return nil
	}
	if req.Status < int(model.MailStatusDelete) || req.Status > int(model.MailStatusTrashed) {
		sendError(s, "set_status", "invalid status")
		return nil
	}
	for _, id := range req.MsgIDs {
		box, ok := mh.ownerOf(ctx, s, id)
		if !ok {
			mh.logger.Warn("set status on foreign message",
				zap.Uint32("charid", s.CharID()), zap.Uint32("msgid", id))
			continue
		}
		err := mh.svc.SetStatus(ctx, box, id, model.MailStatus(req.Status))
		switch {
		case err == nil:
		case errors.Is(err, mail.ErrStatusBackward):
			sendError(s, "set_status", "status cannot move backward")
		case errors.Is(err, mail.ErrMailNotFound):
			// Deleted between the ownership check and the update.
		default:
			return err
		}
	}
	return nil
}

// ownerOf finds which of the session's mailboxes holds msgID.
func (mh *MailHandlers) ownerOf(ctx context.Context, s *session.Session, msgID uint32) (mail.Mailbox, bool) {
	for i, c := range s.Mailboxes() {
		box := mail.Mailbox{Slot: i, CharID: c.ID, Name: c.Name}
		if _, ok := mh.svc.FetchBody(ctx, nil, box, msgID); ok {
			return box, true
		}
	}
	return mail.Mailbox{}, false
}
