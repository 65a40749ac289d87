package models

import (
	"time"
)

const DefaultSystemPrompt = "You are Chad, a Discord AI assistant. Always answer the user's question directly and concisely. " +
	"Lead with the helpful answer, then optionally add one short sarcastic or blunt comment. " +
	"Tone can be mildly rude but never hateful. If the user prompt is unclear, spammy, or misuses " +
	"commands, call it out and tell them briefly what to do instead."

// Per-community limits, budgets and persona.
// AutoApproveEnabled means every non-exempt request is held for reviewer approval.
type CommunityConfig struct {
	CommunityID                  string    `gorm:"primaryKey" json:"community_id"`
	AutoApproveEnabled           bool      `gorm:"not null" json:"auto_approve_enabled"`
	AdminBypassAutoApprove       bool      `gorm:"not null" json:"admin_bypass_auto_approve"`
	AskWindowSeconds             int       `gorm:"not null" json:"ask_window_seconds"`
	AskMaxPerWindow              int       `gorm:"not null" json:"ask_max_per_window"`
	DuplicateWindowSeconds       int       `gorm:"not null" json:"duplicate_window_seconds"`
	UserDailyChatTokenLimit      int64     `gorm:"not null" json:"user_daily_chat_token_limit"`
	CommunityDailyChatTokenLimit int64     `gorm:"not null" json:"community_daily_chat_token_limit"`
	SystemPrompt                 string    `gorm:"type:text;not null" json:"system_prompt"`
	Temperature                  float64   `gorm:"not null" json:"temperature"`
	MaxCompletionTokens          int       `gorm:"not null" json:"max_completion_tokens"`
	MinPromptChars               int       `gorm:"not null" json:"min_prompt_chars"`
	MaxPromptChars               int       `gorm:"not null" json:"max_prompt_chars"`
	CreatedAt                    time.Time `json:"created_at"`
	UpdatedAt                    time.Time `json:"updated_at"`
}

func (CommunityConfig) TableName() string {
	return "community_configs"
}

func DefaultCommunityConfig(communityID string) CommunityConfig {
	return CommunityConfig{
		CommunityID:                  communityID,
		AutoApproveEnabled:           false,
		AdminBypassAutoApprove:       true,
		AskWindowSeconds:             60,
		AskMaxPerWindow:              5,
		DuplicateWindowSeconds:       60,
		UserDailyChatTokenLimit:      20000,
		CommunityDailyChatTokenLimit: 200000,
		SystemPrompt:                 DefaultSystemPrompt,
		Temperature:                  0.5,
		MaxCompletionTokens:          1024,
		MinPromptChars:               5,
		MaxPromptChars:               4000,
	}
}

// Returns the per-window request cap and window length for a command kind
func (c CommunityConfig) RateRule(kind CommandKind) (int, time.Duration) {
	switch kind {
	case KindAsk:
		return c.AskMaxPerWindow, time.Duration(c.AskWindowSeconds) * time.Second
	default:
		return 0, 0
	}
}

// Longest duplicate window a community may configure. In-process guards keep
// fingerprints for exactly this long.
const MaxDuplicateWindowSeconds = 24 * 60 * 60

func (c CommunityConfig) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowSeconds) * time.Second
}

// RequiresApproval reports whether a request must wait for a reviewer.
// exempt is true for community operators and platform admins.
func (c CommunityConfig) RequiresApproval(exempt bool) bool {
	if !c.AutoApproveEnabled {
		return false
	}
	return !(c.AdminBypassAutoApprove && exempt)
}

// Approval-exempt operator of a community
type CommunityOperator struct {
	CommunityID string    `gorm:"primaryKey" json:"community_id"`
	UserID      string    `gorm:"primaryKey" json:"user_id"`
	Role        string    `gorm:"not null;default:'admin'" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func (CommunityOperator) TableName() string {
	return "community_operators"
}
