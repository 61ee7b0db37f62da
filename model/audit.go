package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records mail mutations for later inspection.
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	CharID    *uint32        `gorm:"index:idx_audit_char" json:"char_id"`
	CharName  string         `gorm:"size:64" json:"char_name"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	Request   datatypes.JSON `json:"request"`
	Error     string         `gorm:"type:text" json:"error"`
	IP        string         `gorm:"size:45" json:"ip"`
	CreatedAt time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
