package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Credential used by a chat-platform gateway adapter to submit requests.
// An empty CommunityID allows submissions for any community.
type APIKey struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	KeyHash     string     `gorm:"uniqueIndex;not null" json:"-"`
	Name        string     `gorm:"not null" json:"name"`
	CreatedBy   string     `json:"created_by"`
	CommunityID string     `gorm:"index" json:"community_id,omitempty"`
	IsActive    bool       `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

func (a *APIKey) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (APIKey) TableName() string {
	return "api_keys"
}

func (a *APIKey) Allows(communityID string) bool {
	return a.CommunityID == "" || a.CommunityID == communityID
}
