package models

import "time"

// A request rejected before any record was created
type AuditEntry struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Timestamp   time.Time   `gorm:"index" json:"timestamp"`
	CommunityID string      `gorm:"index" json:"community_id"`
	ChannelID   string      `json:"channel_id"`
	UserID      string      `gorm:"index" json:"user_id"`
	Kind        CommandKind `json:"kind"`
	Reason      string      `gorm:"index" json:"reason"`
	ContentLen  int         `json:"content_len"`
}

func (AuditEntry) TableName() string {
	return "admission_audit"
}
