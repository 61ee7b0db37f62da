// Package session tracks connected mailbox clients.
package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kasuganosora/ucsmail/mail"
	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/wire"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Conn is the part of *websocket.Conn the write pump uses.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one connected mail client. Before login it has no mailboxes.
type Session struct {
	IP      string
	TraceID string
	LastSeq uint64 // read loop only

	Conn     Conn
	SendChan chan []byte
	Done     chan struct{}

	mu        sync.RWMutex
	accountID uint32
	mailboxes []mail.CharacterRef

	logger *zap.Logger
}

// New creates a Session and starts its write pump.
func New(conn Conn, ip string, logger *zap.Logger) *Session {
	s := &Session{
		IP:       ip,
		Conn:     conn,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
	go s.writePump()
	return s
}

// writePump drains SendChan into binary frames and pings the client.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data, ok := <-s.SendChan:
			if !ok {
				return
			}
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Uint32("charid", s.CharID()),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Login binds the session to an account. mailboxes[0] is the character
// that logged in and each index is that mailbox's slot.
func (s *Session) Login(accountID uint32, mailboxes []mail.CharacterRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountID = accountID
	s.mailboxes = append([]mail.CharacterRef(nil), mailboxes...)
}

// LoggedIn reports whether Login has been called.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mailboxes) > 0
}

// AccountID returns the logged-in account, or 0.
func (s *Session) AccountID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountID
}

// CharID returns the primary character id, or 0 before login.
func (s *Session) CharID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.mailboxes) == 0 {
		return 0
	}
	return s.mailboxes[0].ID
}

// CharName returns the primary character name, or "" before login.
func (s *Session) CharName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.mailboxes) == 0 {
		return ""
	}
	return s.mailboxes[0].Name
}

// Mailboxes returns a copy of the session's mailboxes in slot order.
func (s *Session) Mailboxes() []mail.CharacterRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]mail.CharacterRef(nil), s.mailboxes...)
}

// Mailbox resolves a mailbox address to its slot on this session.
// Matching is on the character part of the address, case-insensitively.
func (s *Session) Mailbox(address string) (mail.Mailbox, bool) {
	name := model.CharacterFromMailbox(address)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, c := range s.mailboxes {
		if c.Name == name {
			return mail.Mailbox{Slot: i, CharID: c.ID, Name: c.Name}, true
		}
	}
	return mail.Mailbox{}, false
}

// slotOf returns the slot holding the character called name.
func (s *Session) slotOf(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, c := range s.mailboxes {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// SendPacket frames payload with op and queues it. Drops if the queue is
// full or the session is closed.
func (s *Session) SendPacket(op wire.Opcode, payload []byte) {
	if s.IsClosed() {
		return
	}
	data := wire.Packet{Opcode: op, Payload: payload}.Marshal()
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping packet",
				zap.Uint32("charid", s.CharID()),
				zap.Stringer("opcode", op))
		}
	}
}

// Close signals the write pump to shut down.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

var _ wire.Sender = (*Session)(nil)
