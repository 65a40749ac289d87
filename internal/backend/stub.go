package backend

import (
	"context"
	"unicode/utf8"
)

const stubContent = "[stubbed response because no backend API key is configured]"

// Used when no API key is configured so the rest of the flow stays exercisable
type StubCompleter struct{}

func (StubCompleter) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	promptTokens := int64((utf8.RuneCountInString(prompt.System) + utf8.RuneCountInString(prompt.User) + 3) / 4)
	completionTokens := int64((utf8.RuneCountInString(stubContent) + 3) / 4)

	return Completion{
		Content: stubContent,
		Model:   "stub",
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

func (StubCompleter) Ping(ctx context.Context) error {
	return nil
}
