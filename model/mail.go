package model

import "time"

// MailStatus is the stored state of a mail message.
// 0 is never stored: clients send it to request deletion.
type MailStatus int

const (
	MailStatusDelete  MailStatus = 0
	MailStatusUnread  MailStatus = 1
	MailStatusFlagged MailStatus = 2 // reserved
	MailStatusRead    MailStatus = 3
	MailStatusTrashed MailStatus = 4
)

func (s MailStatus) String() string {
	switch s {
	case MailStatusDelete:
		return "delete"
	case MailStatusUnread:
		return "unread"
	case MailStatusFlagged:
		return "flagged"
	case MailStatusRead:
		return "read"
	case MailStatusTrashed:
		return "trashed"
	}
	return "unknown"
}

// MailRecord is one message in a character's mailbox.
type MailRecord struct {
	MsgID     uint32     `gorm:"column:msgid;primaryKey;autoIncrement" json:"msgid"`
	CharID    uint32     `gorm:"column:charid;index:idx_mail_charid;not null" json:"charid"`
	Timestamp int64      `gorm:"column:timestamp;index:idx_mail_expire,priority:2;not null" json:"timestamp"`
	From      string     `gorm:"column:from;size:100" json:"from"`
	Subject   string     `gorm:"column:subject;size:200" json:"subject"`
	Body      string     `gorm:"column:body;type:text" json:"body"`
	To        string     `gorm:"column:to;type:text" json:"to"`
	Status    MailStatus `gorm:"column:status;index:idx_mail_expire,priority:1;not null;default:1" json:"status"`
}

// TableName keeps the table name shared with the rest of the game schema.
func (MailRecord) TableName() string { return "mail" }

// CreatedAt converts the stored unix timestamp.
func (m MailRecord) CreatedAt() time.Time { return time.Unix(m.Timestamp, 0) }
