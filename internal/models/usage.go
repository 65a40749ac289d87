package models

import "time"

// Tokens consumed by one user in one community on one UTC day
type UserDailyUsage struct {
	CommunityID string    `gorm:"primaryKey" json:"community_id"`
	UserID      string    `gorm:"primaryKey" json:"user_id"`
	Day         string    `gorm:"primaryKey;size:10" json:"day"`
	TokensUsed  int64     `gorm:"not null" json:"tokens_used"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (UserDailyUsage) TableName() string {
	return "user_daily_usage"
}

// Tokens consumed by a whole community on one UTC day
type CommunityDailyUsage struct {
	CommunityID string    `gorm:"primaryKey" json:"community_id"`
	Day         string    `gorm:"primaryKey;size:10" json:"day"`
	TokensUsed  int64     `gorm:"not null" json:"tokens_used"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CommunityDailyUsage) TableName() string {
	return "community_daily_usage"
}
