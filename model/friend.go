package model

// FriendKind distinguishes friend and ignore entries.
type FriendKind int

const (
	FriendKindIgnore FriendKind = 0
	FriendKindFriend FriendKind = 1
)

func (k FriendKind) String() string {
	if k == FriendKindIgnore {
		return "ignore"
	}
	return "friend"
}

// FriendEntry is a friend or ignore list row. Name is stored canonical
// (see CanonicalName).
type FriendEntry struct {
	CharID uint32     `gorm:"column:charid;primaryKey;autoIncrement:false" json:"charid"`
	Kind   FriendKind `gorm:"column:type;primaryKey;autoIncrement:false" json:"type"`
	Name   string     `gorm:"column:name;primaryKey;size:64" json:"name"`
}

func (FriendEntry) TableName() string { return "friends" }
