package model

// Character is the subset of the game's character table the mail service
// reads. MailKey is written by the world server when it hands out a
// mailbox token.
type Character struct {
	ID        uint32 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AccountID uint32 `gorm:"column:account_id;index:idx_character_account;not null" json:"account_id"`
	Name      string `gorm:"column:name;uniqueIndex;size:64;not null" json:"name"`
	Level     int    `gorm:"column:level;default:1" json:"level"`
	MailKey   string `gorm:"column:mailkey;size:16" json:"-"`
}

func (Character) TableName() string { return "character_data" }
