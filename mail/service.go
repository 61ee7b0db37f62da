package mail

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/ucsmail/audit"
	"github.com/kasuganosora/ucsmail/config"
	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/store"
	"github.com/kasuganosora/ucsmail/wire"
	"go.uber.org/zap"
)

// ErrRecipientNotFound is returned by SendMail when the recipient name does
// not resolve to exactly one character. Nothing is stored in that case.
var ErrRecipientNotFound = errors.New("mail: recipient not found")

// ErrInvalidText is returned by SendMail when a field contains a NUL byte,
// which the wire format cannot carry.
var ErrInvalidText = errors.New("mail: text contains a NUL byte")

// ErrMailNotFound is returned by SetStatus when the message is not in the
// mailbox.
var ErrMailNotFound = errors.New("mail: message not found")

// ErrStatusBackward is returned by SetStatus for a move to an earlier
// status, such as Read back to Unread.
var ErrStatusBackward = errors.New("mail: status cannot move backward")

// ErrInvalidStatus is returned by SetStatus for values outside the enum.
var ErrInvalidStatus = errors.New("mail: invalid status")

// Store is the persistence the mail service needs.
type Store interface {
	CharacterByName(ctx context.Context, name string) (model.Character, error)
	AccountCharacters(ctx context.Context, accountID uint32) ([]model.Character, error)
	InsertMail(ctx context.Context, rec *model.MailRecord) error
	MailHeaders(ctx context.Context, charID uint32) ([]model.MailRecord, error)
	MailBody(ctx context.Context, charID, msgID uint32) (model.MailRecord, error)
	DeleteMail(ctx context.Context, msgID uint32) error
	UpdateMailStatus(ctx context.Context, msgID uint32, status model.MailStatus) error
	CountMail(ctx context.Context) (int64, error)
	DeleteMailBefore(ctx context.Context, status model.MailStatus, cutoff time.Time) (int64, error)
}

// Presence finds the connection of an online character and the mailbox
// slot that character occupies on it.
type Presence interface {
	IsCharacterOnline(name string) (dst wire.Sender, slot int, ok bool)
}

// Auditor records mail mutations.
type Auditor interface {
	Log(entry audit.AuditEntry)
}

// CharacterRef identifies a character and its owning account.
type CharacterRef struct {
	ID        uint32
	AccountID uint32
	Name      string
	Level     int
}

// Account is a character's account with every mailbox it can open.
// Characters[0] is the character that logged in; the index is the
// mailbox slot.
type Account struct {
	ID         uint32
	Characters []CharacterRef
}

// Mailbox addresses one character's mail on a connection.
type Mailbox struct {
	Slot   int
	CharID uint32
	Name   string
}

// HeaderView is one row of a mailbox listing.
type HeaderView struct {
	Slot      int              `json:"slot"`
	Index     int              `json:"index"`
	MsgID     uint32           `json:"msgid"`
	Timestamp int64            `json:"timestamp"`
	Status    model.MailStatus `json:"status"`
	From      string           `json:"from"`
	Subject   string           `json:"subject"`
}

// BodyView is a fetched message body.
type BodyView struct {
	Slot  int    `json:"slot"`
	MsgID uint32 `json:"msgid"`
	Body  string `json:"body"`
	To    string `json:"to"`
}

// ExpireResult counts what one Expire pass removed. A rule that is
// disabled or failed reports -1.
type ExpireResult struct {
	Total  int64 `json:"total"`
	Trash  int64 `json:"trash"`
	Read   int64 `json:"read"`
	Unread int64 `json:"unread"`
}

// Service implements mailbox listing, delivery, status changes and expiry.
type Service struct {
	store    Store
	presence Presence
	auditor  Auditor
	metrics  *Metrics
	cfg      *config.MailConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a mail Service. presence and auditor may be nil.
func NewService(s Store, presence Presence, auditor Auditor, metrics *Metrics, cfg *config.MailConfig, logger *zap.Logger) *Service {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		store:    s,
		presence: presence,
		auditor:  auditor,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Metrics returns the service counters.
func (svc *Service) Metrics() *Metrics { return svc.metrics }

// FindCharacter resolves a display name to a character. The name is
// canonicalized first; zero or several matches report not found.
func (svc *Service) FindCharacter(ctx context.Context, name string) (CharacterRef, bool) {
	name = model.CanonicalName(name)
	c, err := svc.store.CharacterByName(ctx, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			svc.logger.Warn("find character failed", zap.String("name", name), zap.Error(err))
		}
		return CharacterRef{}, false
	}
	return toRef(c), true
}

// FindAccount resolves name and lists every character of its account,
// the named character first.
func (svc *Service) FindAccount(ctx context.Context, name string) (Account, bool) {
	primary, ok := svc.FindCharacter(ctx, name)
	if !ok {
		return Account{}, false
	}
	acct := Account{ID: primary.AccountID, Characters: []CharacterRef{primary}}

	others, err := svc.store.AccountCharacters(ctx, primary.AccountID)
	if err != nil {
		// The primary mailbox is still usable.
		svc.logger.Warn("list account characters failed",
			zap.Uint32("account_id", primary.AccountID), zap.Error(err))
		return acct, true
	}
	for _, c := range others {
		if c.ID != primary.ID {
			acct.Characters = append(acct.Characters, toRef(c))
		}
	}
	svc.logger.Debug("account found",
		zap.String("name", primary.Name),
		zap.Uint32("account_id", acct.ID),
		zap.Int("mailboxes", len(acct.Characters)))
	return acct, true
}

func toRef(c model.Character) CharacterRef {
	return CharacterRef{ID: c.ID, AccountID: c.AccountID, Name: c.Name, Level: c.Level}
}

// SendMail stores a message for recipient and, when the recipient is
// online, pushes a new-mail notification to them. recipient may be a fully
// qualified mailbox address; only the part after the last '.' is used.
func (svc *Service) SendMail(ctx context.Context, recipient, from, subject, body, recipients string) (uint32, error) {
	if err := wire.CheckText(recipient, from, subject, body, recipients); err != nil {
		svc.logger.Debug("send mail: rejected text", zap.String("from", from), zap.Error(err))
		return 0, ErrInvalidText
	}
	name := model.CharacterFromMailbox(recipient)
	char, ok := svc.FindCharacter(ctx, name)
	if !ok {
		svc.logger.Debug("send mail: unknown recipient", zap.String("recipient", recipient))
		return 0, ErrRecipientNotFound
	}

	rec := &model.MailRecord{
		CharID:    char.ID,
		Timestamp: svc.now().Unix(),
		From:      from,
		Subject:   subject,
		Body:      body,
		To:        recipients,
		Status:    model.MailStatusUnread,
	}
	if err := svc.store.InsertMail(ctx, rec); err != nil {
		svc.logger.Error("send mail failed",
			zap.String("from", from), zap.String("to", char.Name), zap.Error(err))
		return 0, err
	}
	svc.logger.Debug("mail stored",
		zap.Uint32("msgid", rec.MsgID),
		zap.String("from", from),
		zap.String("to", char.Name))

	if svc.presence != nil {
		if dst, slot, online := svc.presence.IsCharacterOnline(char.Name); online {
			dst.SendPacket(wire.OpMailNew,
				NewMailPacket(slot, rec.MsgID, rec.Timestamp, svc.cfg.Prefix+from, subject))
		}
	}

	svc.metrics.incSent()
	svc.audit(ctx, "mail_send", char.ID, char.Name, map[string]interface{}{
		"msgid": rec.MsgID, "from": from, "subject": subject,
	}, nil)
	return rec.MsgID, nil
}

// ListHeaders returns the headers of box and, when dst is non-nil, sends
// the count packet followed by one header packet per message.
func (svc *Service) ListHeaders(ctx context.Context, dst wire.Sender, box Mailbox) ([]HeaderView, error) {
	rows, err := svc.store.MailHeaders(ctx, box.CharID)
	if err != nil {
		svc.logger.Warn("list headers failed", zap.Uint32("charid", box.CharID), zap.Error(err))
		return nil, err
	}

	views := make([]HeaderView, len(rows))
	for i, r := range rows {
		views[i] = HeaderView{
			Slot:      box.Slot,
			Index:     i,
			MsgID:     r.MsgID,
			Timestamp: r.Timestamp,
			Status:    r.Status,
			From:      r.From,
			Subject:   r.Subject,
		}
	}

	if dst != nil {
		dst.SendPacket(wire.OpMailHeaderCount, HeaderCountPacket(box.Slot, len(rows)))
		for i, r := range rows {
			dst.SendPacket(wire.OpMailHeader, HeaderPacket(box.Slot, i, svc.cfg.Prefix, r))
		}
	}
	svc.logger.Debug("headers sent",
		zap.String("mailbox", box.Name),
		zap.Uint32("charid", box.CharID),
		zap.Int("count", len(rows)))
	return views, nil
}

// FetchBody returns the body of msgID in box and, when dst is non-nil,
// sends the body packet. Anything but exactly one match reports false.
func (svc *Service) FetchBody(ctx context.Context, dst wire.Sender, box Mailbox, msgID uint32) (BodyView, bool) {
	rec, err := svc.store.MailBody(ctx, box.CharID, msgID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			svc.logger.Warn("fetch body failed", zap.Uint32("msgid", msgID), zap.Error(err))
		}
		return BodyView{}, false
	}
	if dst != nil {
		dst.SendPacket(wire.OpMailSendBody, BodyPacket(box.Slot, rec))
	}
	svc.logger.Debug("body sent", zap.Uint32("msgid", msgID), zap.Int("bytes", len(rec.Body)))
	return BodyView{Slot: box.Slot, MsgID: rec.MsgID, Body: rec.Body, To: rec.To}, true
}

// SetStatus stores a new status for msgID in box. Status 0 deletes the
// message. Otherwise the status only moves forward (Unread, Flagged, Read,
// Trashed); setting the current status again is a harmless no-op.
func (svc *Service) SetStatus(ctx context.Context, box Mailbox, msgID uint32, status model.MailStatus) error {
	if status < model.MailStatusDelete || status > model.MailStatusTrashed {
		return ErrInvalidStatus
	}
	rec, err := svc.store.MailBody(ctx, box.CharID, msgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMailNotFound
		}
		svc.logger.Warn("set status: load failed", zap.Uint32("msgid", msgID), zap.Error(err))
		return err
	}

	action := "mail_status"
	switch {
	case status == model.MailStatusDelete:
		action = "mail_delete"
		err = svc.store.DeleteMail(ctx, msgID)
	case status < rec.Status:
		svc.logger.Debug("set status: backward move refused",
			zap.Uint32("msgid", msgID), zap.Stringer("from", rec.Status), zap.Stringer("to", status))
		err = ErrStatusBackward
	case status == rec.Status:
	default:
		err = svc.store.UpdateMailStatus(ctx, msgID, status)
	}
	if err != nil && !errors.Is(err, ErrStatusBackward) {
		svc.logger.Warn("set status failed",
			zap.Uint32("msgid", msgID), zap.Int("status", int(status)), zap.Error(err))
	}
	svc.audit(ctx, action, box.CharID, box.Name, map[string]interface{}{
		"msgid": msgID, "from": int(rec.Status), "status": int(status),
	}, err)
	return err
}

// Expire applies the three retention rules. Each runs independently; a
// negative window disables its rule and a failing rule does not stop the
// others.
func (svc *Service) Expire(ctx context.Context) ExpireResult {
	res := ExpireResult{Total: -1, Trash: -1, Read: -1, Unread: -1}

	if n, err := svc.store.CountMail(ctx); err != nil {
		svc.logger.Warn("count mail failed", zap.Error(err))
	} else {
		res.Total = n
		svc.logger.Debug("expiring mail", zap.Int64("messages", n))
	}

	now := svc.now()
	rules := []struct {
		status model.MailStatus
		window time.Duration
		out    *int64
	}{
		{model.MailStatusTrashed, svc.cfg.ExpireTrash, &res.Trash},
		{model.MailStatusRead, svc.cfg.ExpireRead, &res.Read},
		{model.MailStatusUnread, svc.cfg.ExpireUnread, &res.Unread},
	}
	for _, r := range rules {
		if r.window < 0 {
			continue
		}
		n, err := svc.store.DeleteMailBefore(ctx, r.status, now.Add(-r.window))
		if err != nil {
			svc.logger.Warn("expire failed", zap.Stringer("status", r.status), zap.Error(err))
			continue
		}
		*r.out = n
		svc.metrics.addExpired(r.status.String(), n)
		svc.logger.Debug("expired messages", zap.Stringer("status", r.status), zap.Int64("count", n))
	}
	return res
}

func (svc *Service) audit(ctx context.Context, action string, charID uint32, name string, req interface{}, err error) {
	if svc.auditor == nil {
		return
	}
	entry := audit.AuditEntry{
		TraceID:  audit.TraceID(ctx),
		IP:       audit.ClientIP(ctx),
		CharName: name,
		Action:   action,
		Request:  req,
	}
	if charID != 0 {
		entry.CharID = &charID
	}
	if err != nil {
		entry.Error = err.Error()
	}
	svc.auditor.Log(entry)
}
