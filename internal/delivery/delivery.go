package delivery

import (
	"context"
	"log/slog"
)

// Reply is one outbound message to the channel a request came from
type Reply struct {
	ChannelID     string
	Content       string
	MentionUserID string
	// Message being answered, if the platform supports threading replies
	ReplyToMessageID string
}

// Notifier delivers replies. At-least-once is acceptable; callers never retry.
type Notifier interface {
	Deliver(ctx context.Context, reply Reply) error
}

// LogNotifier only logs; used when no chat-platform token is configured
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "delivery")}
}

func (n *LogNotifier) Deliver(ctx context.Context, reply Reply) error {
	n.logger.InfoContext(ctx, "reply not sent, no platform token configured",
		"channel_id", reply.ChannelID,
		"mention_user_id", reply.MentionUserID,
		"content_len", len(reply.Content),
	)
	return nil
}
