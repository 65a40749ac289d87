package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Dashboard user acting on the approval queue
type Reviewer struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `json:"name"`
	Role         string    `gorm:"not null;default:'admin'" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *Reviewer) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	return nil
}

func (Reviewer) TableName() string {
	return "reviewers"
}
