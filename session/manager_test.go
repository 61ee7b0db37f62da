package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_RegisterAndLookup(t *testing.T) {
	m := NewManager(zap.NewNop())
	s, _ := newSession(t, 10, "Bob", "Alt")
	m.Register(s)

	assert.Equal(t, 1, m.Count())
	assert.Same(t, s, m.Get(10))
	assert.Nil(t, m.Get(11), "secondary mailboxes are not keys")

	dst, slot, ok := m.IsCharacterOnline("alt")
	require.True(t, ok)
	assert.Same(t, s, dst)
	assert.Equal(t, 1, slot)

	_, _, ok = m.IsCharacterOnline("Nobody")
	assert.False(t, ok)
}

func TestManager_DuplicateDisplaced(t *testing.T) {
	m := NewManager(zap.NewNop())
	first, _ := newSession(t, 10, "Bob")
	second, _ := newSession(t, 10, "Bob")

	m.Register(first)
	m.Register(second)
	assert.True(t, first.IsClosed())
	assert.Same(t, second, m.Get(10))

	m.Unregister(first)
	assert.Same(t, second, m.Get(10), "stale unregister keeps the newer session")

	m.Unregister(second)
	assert.Zero(t, m.Count())
}

func TestManager_SharedMailboxPrefersPrimary(t *testing.T) {
	m := NewManager(zap.NewNop())
	asBob, _ := newSession(t, 10, "Bob", "Alt")
	asAlt, _ := newSession(t, 20, "Alt", "Bob")
	m.Register(asBob)
	m.Register(asAlt)

	for i := 0; i < 20; i++ {
		dst, slot, ok := m.IsCharacterOnline("bob")
		require.True(t, ok)
		assert.Same(t, asBob, dst)
		assert.Equal(t, 0, slot)

		dst, slot, ok = m.IsCharacterOnline("alt")
		require.True(t, ok)
		assert.Same(t, asAlt, dst)
		assert.Equal(t, 0, slot)
	}
}

func TestManager_SharedMailboxPrefersNewest(t *testing.T) {
	m := NewManager(zap.NewNop())
	older, _ := newSession(t, 10, "Bob", "Third")
	newer, _ := newSession(t, 20, "Alt", "Third")
	m.Register(older)
	m.Register(newer)

	for i := 0; i < 20; i++ {
		dst, slot, ok := m.IsCharacterOnline("Third")
		require.True(t, ok)
		assert.Same(t, newer, dst)
		assert.Equal(t, 1, slot)
	}

	m.Unregister(newer)
	dst, _, ok := m.IsCharacterOnline("Third")
	require.True(t, ok)
	assert.Same(t, older, dst)
}

func TestManager_ClosedSessionIsOffline(t *testing.T) {
	m := NewManager(zap.NewNop())
	s, _ := newSession(t, 10, "Bob")
	m.Register(s)
	s.Close()

	_, _, ok := m.IsCharacterOnline("Bob")
	assert.False(t, ok)
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager(zap.NewNop())
	a, _ := newSession(t, 1, "A")
	b, _ := newSession(t, 2, "B")
	m.Register(a)
	m.Register(b)
	assert.Len(t, m.All(), 2)

	go func() {
		for !a.IsClosed() || !b.IsClosed() {
			time.Sleep(time.Millisecond)
		}
		m.Unregister(a)
		m.Unregister(b)
	}()
	m.CloseAll(time.Second)
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Zero(t, m.Count())
}
