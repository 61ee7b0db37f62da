// Package friends keeps per-character friend and ignore lists.
package friends

import (
	"context"
	"errors"

	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/store"
	"github.com/kasuganosora/ucsmail/wire"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyListed is returned by Add when the name is already on the list.
	ErrAlreadyListed = errors.New("friends: already listed")
	// ErrInvalidName is returned for names the buddy list packet cannot carry.
	ErrInvalidName = errors.New("friends: invalid name")
)

// Store is the persistence the registry needs.
type Store interface {
	AddFriend(ctx context.Context, e model.FriendEntry) error
	RemoveFriend(ctx context.Context, e model.FriendEntry) error
	Friends(ctx context.Context, charID uint32) ([]model.FriendEntry, error)
}

// Registry adds, removes and lists friend and ignore entries. Nothing is
// cached; every call goes to the store.
type Registry struct {
	store  Store
	logger *zap.Logger
}

// NewRegistry creates a Registry.
func NewRegistry(s Store, logger *zap.Logger) *Registry {
	return &Registry{store: s, logger: logger}
}

// Add stores name on charID's friend or ignore list.
func (r *Registry) Add(ctx context.Context, charID uint32, kind model.FriendKind, name string) error {
	if wire.CheckText(name) != nil {
		return ErrInvalidName
	}
	e := model.FriendEntry{CharID: charID, Kind: kind, Name: model.CanonicalName(name)}
	if err := r.store.AddFriend(ctx, e); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrAlreadyListed
		}
		r.logger.Warn("add friend/ignore failed",
			zap.Uint32("charid", charID), zap.Int("type", int(kind)),
			zap.String("name", e.Name), zap.Error(err))
		return err
	}
	r.logger.Debug("friend/ignore added",
		zap.Uint32("charid", charID), zap.Int("type", int(kind)), zap.String("name", e.Name))
	return nil
}

// Remove deletes name from charID's friend or ignore list.
func (r *Registry) Remove(ctx context.Context, charID uint32, kind model.FriendKind, name string) error {
	e := model.FriendEntry{CharID: charID, Kind: kind, Name: model.CanonicalName(name)}
	if err := r.store.RemoveFriend(ctx, e); err != nil {
		r.logger.Warn("remove friend/ignore failed",
			zap.Uint32("charid", charID), zap.Int("type", int(kind)),
			zap.String("name", e.Name), zap.Error(err))
		return err
	}
	r.logger.Debug("friend/ignore removed",
		zap.Uint32("charid", charID), zap.Int("type", int(kind)), zap.String("name", e.Name))
	return nil
}

// List returns charID's friends and ignored names in store order.
func (r *Registry) List(ctx context.Context, charID uint32) (friends, ignored []string, err error) {
	rows, err := r.store.Friends(ctx, charID)
	if err != nil {
		r.logger.Warn("list friends failed", zap.Uint32("charid", charID), zap.Error(err))
		return nil, nil, err
	}
	friends = []string{}
	ignored = []string{}
	for _, row := range rows {
		if row.Kind == model.FriendKindIgnore {
			ignored = append(ignored, row.Name)
			continue
		}
		friends = append(friends, row.Name)
	}
	return friends, ignored, nil
}

// BuddyListPacket encodes both lists: the friend count and names, then the
// ignore count and names.
func BuddyListPacket(friends, ignored []string) []byte {
	fields := make([]wire.Field, 0, len(friends)+len(ignored)+2)
	fields = append(fields, wire.Int(int64(len(friends))))
	for _, n := range friends {
		fields = append(fields, wire.Str(n))
	}
	fields = append(fields, wire.Int(int64(len(ignored))))
	for _, n := range ignored {
		fields = append(fields, wire.Str(n))
	}
	return wire.Encode(fields...)
}
