package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/ucsmail/model"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup that expects exactly one row finds
// zero or several.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when an insert hits a unique or primary key.
var ErrDuplicate = errors.New("store: duplicate entry")

// Store is the typed persistence boundary of the mail service. Every query
// is parameterized, so names, subjects and bodies never reach SQL text.
type Store struct {
	db *gorm.DB
}

// New wraps a *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for admin tooling and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// ---- Characters ----

// CharacterByName returns the single character with the given name.
func (s *Store) CharacterByName(ctx context.Context, name string) (model.Character, error) {
	var rows []model.Character
	if err := s.db.WithContext(ctx).Where("name = ?", name).Limit(2).Find(&rows).Error; err != nil {
		return model.Character{}, fmt.Errorf("store: character %q: %w", name, err)
	}
	if len(rows) != 1 {
		return model.Character{}, ErrNotFound
	}
	return rows[0], nil
}

// CharacterByID returns the character with the given id.
func (s *Store) CharacterByID(ctx context.Context, id uint32) (model.Character, error) {
	var rows []model.Character
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return model.Character{}, fmt.Errorf("store: character %d: %w", id, err)
	}
	if len(rows) == 0 {
		return model.Character{}, ErrNotFound
	}
	return rows[0], nil
}

// AccountCharacters lists every character of an account in id order.
func (s *Store) AccountCharacters(ctx context.Context, accountID uint32) ([]model.Character, error) {
	var rows []model.Character
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: account %d characters: %w", accountID, err)
	}
	return rows, nil
}

// MailKey returns the stored mailbox key of a character.
func (s *Store) MailKey(ctx context.Context, name string) (string, error) {
	c, err := s.CharacterByName(ctx, name)
	if err != nil {
		return "", err
	}
	return c.MailKey, nil
}

// ---- Mail ----

// InsertMail persists rec and fills in its MsgID.
func (s *Store) InsertMail(ctx context.Context, rec *model.MailRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("store: insert mail: %w", err)
	}
	return nil
}

// MailHeaders returns the mail of a character in insertion order.
func (s *Store) MailHeaders(ctx context.Context, charID uint32) ([]model.MailRecord, error) {
	var rows []model.MailRecord
	err := s.db.WithContext(ctx).
		Select("msgid", "charid", "timestamp", "from", "subject", "status").
		Where("charid = ?", charID).
		Order("msgid").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: mail headers for %d: %w", charID, err)
	}
	return rows, nil
}

// MailBody returns the single message matching both owner and id.
func (s *Store) MailBody(ctx context.Context, charID, msgID uint32) (model.MailRecord, error) {
	var rows []model.MailRecord
	err := s.db.WithContext(ctx).
		Where("charid = ? AND msgid = ?", charID, msgID).
		Limit(2).
		Find(&rows).Error
	if err != nil {
		return model.MailRecord{}, fmt.Errorf("store: mail body %d: %w", msgID, err)
	}
	if len(rows) != 1 {
		return model.MailRecord{}, ErrNotFound
	}
	return rows[0], nil
}

// DeleteMail removes a message. Deleting a missing id is not an error.
func (s *Store) DeleteMail(ctx context.Context, msgID uint32) error {
	if err := s.db.WithContext(ctx).Where("msgid = ?", msgID).Delete(&model.MailRecord{}).Error; err != nil {
		return fmt.Errorf("store: delete mail %d: %w", msgID, err)
	}
	return nil
}

// UpdateMailStatus sets the status column of one message.
func (s *Store) UpdateMailStatus(ctx context.Context, msgID uint32, status model.MailStatus) error {
	err := s.db.WithContext(ctx).Model(&model.MailRecord{}).
		Where("msgid = ?", msgID).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("store: update mail %d status: %w", msgID, err)
	}
	return nil
}

// CountMail returns the number of stored messages.
func (s *Store) CountMail(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.MailRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count mail: %w", err)
	}
	return n, nil
}

// DeleteMailBefore deletes every message with the given status whose
// timestamp is strictly older than cutoff, returning the affected row count.
func (s *Store) DeleteMailBefore(ctx context.Context, status model.MailStatus, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status = ? AND timestamp < ?", status, cutoff.Unix()).
		Delete(&model.MailRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: expire %s mail: %w", status, res.Error)
	}
	return res.RowsAffected, nil
}

// ---- Friends ----

// AddFriend inserts a friend or ignore entry.
func (s *Store) AddFriend(ctx context.Context, e model.FriendEntry) error {
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("store: add friend: %w", err)
	}
	return nil
}

// RemoveFriend deletes a friend or ignore entry.
func (s *Store) RemoveFriend(ctx context.Context, e model.FriendEntry) error {
	err := s.db.WithContext(ctx).
		Where("charid = ? AND type = ? AND name = ?", e.CharID, e.Kind, e.Name).
		Delete(&model.FriendEntry{}).Error
	if err != nil {
		return fmt.Errorf("store: remove friend: %w", err)
	}
	return nil
}

// Friends returns all friend and ignore rows of a character in store order.
func (s *Store) Friends(ctx context.Context, charID uint32) ([]model.FriendEntry, error) {
	var rows []model.FriendEntry
	if err := s.db.WithContext(ctx).Where("charid = ?", charID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: friends of %d: %w", charID, err)
	}
	return rows, nil
}
