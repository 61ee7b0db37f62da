package session

import (
	"sync"
	"time"

	"github.com/kasuganosora/ucsmail/mail"
	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/wire"
	"go.uber.org/zap"
)

// Manager is the registry of logged-in sessions, keyed by the primary
// character id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
	order    map[uint32]uint64 // registration sequence per primary char
	next     uint64
	logger   *zap.Logger
}

// NewManager creates a new Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[uint32]*Session),
		order:    make(map[uint32]uint64),
		logger:   logger,
	}
}

// Register adds a logged-in session. A previous session for the same
// character is closed first.
func (m *Manager) Register(s *Session) {
	charID := s.CharID()
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[charID]; ok && old != s {
		old.Close()
		m.logger.Info("duplicate session displaced", zap.Uint32("charid", charID))
	}
	m.sessions[charID] = s
	m.next++
	m.order[charID] = m.next
	m.logger.Info("mail session registered",
		zap.Uint32("charid", charID),
		zap.Uint32("account_id", s.AccountID()),
		zap.Int("mailboxes", len(s.Mailboxes())))
}

// Unregister removes s. A newer session registered for the same character
// is left alone.
func (m *Manager) Unregister(s *Session) {
	charID := s.CharID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[charID]; ok && cur == s {
		delete(m.sessions, charID)
		delete(m.order, charID)
		m.logger.Info("mail session unregistered", zap.Uint32("charid", charID))
	}
}

// Get returns the session for a charID, or nil if not found.
func (m *Manager) Get(charID uint32) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[charID]
}

// IsCharacterOnline finds a session that has name as one of its mailboxes
// and returns it with the slot the mailbox occupies. Several sessions of
// one account can hold the same mailbox: the session logged in as name
// wins, otherwise the most recently registered one.
func (m *Manager) IsCharacterOnline(name string) (wire.Sender, int, bool) {
	name = model.CanonicalName(name)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best     *Session
		bestSlot int
		bestSeq  uint64
	)
	for charID, s := range m.sessions {
		slot, ok := s.slotOf(name)
		if !ok || s.IsClosed() {
			continue
		}
		if slot == 0 {
			return s, 0, true
		}
		if seq := m.order[charID]; best == nil || seq > bestSeq {
			best, bestSlot, bestSeq = s, slot, seq
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestSlot, true
}

// Count returns the number of currently connected sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot slice of all current sessions.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAll closes every session and waits up to maxWait for their read
// loops to unregister them.
func (m *Manager) CloseAll(maxWait time.Duration) {
	sessions := m.All()
	m.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	start := time.Now()
	for time.Since(start) < maxWait {
		if m.Count() == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
}

var _ mail.Presence = (*Manager)(nil)
