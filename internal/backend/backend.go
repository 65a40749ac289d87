package backend

import (
	"context"
	"unicode/utf8"
)

type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// Completer produces one chat completion. Implementations may retry
// transient failures internally but must honor ctx cancellation.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
}

// Estimate is the worst-case token cost reserved before a call: roughly four
// characters per prompt token plus the full completion allowance.
func Estimate(system, user string, maxCompletion int) int64 {
	chars := utf8.RuneCountInString(system) + utf8.RuneCountInString(user)
	promptTokens := (chars + 3) / 4
	if maxCompletion < 0 {
		maxCompletion = 0
	}
	return int64(promptTokens + maxCompletion)
}
