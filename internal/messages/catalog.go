package messages

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"gopkg.in/yaml.v3"
)

// Message keys
const (
	EmptyInput          = "empty_input"
	TooShort            = "too_short"
	TrivialInput        = "trivial_input"
	Gibberish           = "gibberish"
	TooLong             = "too_long"
	Duplicate           = "duplicate"
	RateLimitChat       = "rate_limit_chat"
	ChatBudgetUser      = "chat_budget_user"
	ChatBudgetCommunity = "chat_budget_guild"
	PendingApprovalChat = "pending_approval_chat"
	AIErrorChat         = "ai_error_chat"
	ManualReplyDefault  = "manual_reply_default"
	RejectionDefault    = "rejection_default"
	InvalidInput        = "invalid_input"
	ConfigUnavailable   = "config_unavailable"
	UnknownError        = "unknown_error"
)

type BotSettings struct {
	ReplyPrefix string `yaml:"reply_prefix" json:"reply_prefix"`
	ReplySuffix string `yaml:"reply_suffix" json:"reply_suffix"`
}

// On-disk layout of the catalog file
type Document struct {
	BotSettings  BotSettings       `yaml:"bot_settings" json:"bot_settings"`
	SystemPrompt string            `yaml:"system_prompt" json:"system_prompt"`
	Messages     map[string]string `yaml:"messages" json:"messages"`
}

func Defaults() Document {
	return Document{
		SystemPrompt: models.DefaultSystemPrompt,
		Messages: map[string]string{
			EmptyInput:          "Try sending an actual question instead of blank air.",
			TooShort:            "That barely qualifies as a question. Add some words.",
			TrivialInput:        "Wow, groundbreaking. Try a real question.",
			Gibberish:           "That looks like keyboard smash. Try again.",
			TooLong:             "Message is too long. Trim it under {max_chars} characters.",
			Duplicate:           "You literally just asked that. Wait a bit.",
			RateLimitChat:       "Cool it. You hit the spam limit. Try again later.",
			ChatBudgetUser:      "Your daily chat budget is toast. Ask again tomorrow.",
			ChatBudgetCommunity: "This server used up the chat budget for today. Cool your jets.",
			PendingApprovalChat: "Your request is waiting for an admin to approve.",
			AIErrorChat:         "The AI had a meltdown. Try again later.",
			ManualReplyDefault:  "Admin reply.",
			RejectionDefault:    "Request rejected by an admin.",
			InvalidInput:        "Invalid input.",
			ConfigUnavailable:   "Settings for this server could not be loaded. Try again in a moment.",
			UnknownError:        "Something went wrong. Try again.",
		},
	}
}

// Catalog holds user-facing reply texts. Reads are safe during Update.
type Catalog struct {
	mu   sync.RWMutex
	path string
	doc  Document
}

// Load reads the catalog at path. A missing file is created from defaults;
// an empty path keeps the catalog in memory only.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path, doc: Defaults()}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("message catalog not found, writing defaults", "path", path)
		return c, c.save()
	}
	if err != nil {
		return nil, fmt.Errorf("read message catalog: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse message catalog %s: %w", path, err)
	}
	c.doc = merge(Defaults(), doc)
	return c, nil
}

// In-memory catalog with the built-in texts
func Default() *Catalog {
	return &Catalog{doc: Defaults()}
}

// Message returns the text for key with {name} placeholders filled from vars
func (c *Catalog) Message(key string, vars map[string]string) string {
	c.mu.RLock()
	msg, ok := c.doc.Messages[key]
	if !ok {
		msg = c.doc.Messages[UnknownError]
	}
	c.mu.RUnlock()

	for name, value := range vars {
		msg = strings.ReplaceAll(msg, "{"+name+"}", value)
	}
	return msg
}

// Format wraps content with the configured prefix and suffix
func (c *Catalog) Format(content string) string {
	c.mu.RLock()
	prefix, suffix := c.doc.BotSettings.ReplyPrefix, c.doc.BotSettings.ReplySuffix
	c.mu.RUnlock()

	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, content)
	if suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, " ")
}

// Fallback persona for communities without their own
func (c *Catalog) SystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.SystemPrompt
}

func (c *Catalog) Snapshot() Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc := c.doc
	doc.Messages = maps.Clone(c.doc.Messages)
	return doc
}

var ErrUnknownKey = errors.New("unknown message key")

// Update merges non-empty fields of patch and persists the result
func (c *Catalog) Update(patch Document) (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range patch.Messages {
		if _, known := c.doc.Messages[key]; !known {
			return Document{}, fmt.Errorf("%w %q", ErrUnknownKey, key)
		}
	}

	previous := c.doc
	c.doc = merge(c.doc, patch)
	if err := c.save(); err != nil {
		c.doc = previous
		return Document{}, err
	}

	doc := c.doc
	doc.Messages = maps.Clone(c.doc.Messages)
	return doc, nil
}

// Caller holds the lock or owns c exclusively
func (c *Catalog) save() error {
	if c.path == "" {
		return nil
	}

	data, err := yaml.Marshal(c.doc)
	if err != nil {
		return fmt.Errorf("encode message catalog: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write message catalog: %w", err)
	}
	return nil
}

func merge(base, patch Document) Document {
	out := base
	out.Messages = maps.Clone(base.Messages)
	if out.Messages == nil {
		out.Messages = map[string]string{}
	}

	if patch.SystemPrompt != "" {
		out.SystemPrompt = patch.SystemPrompt
	}
	if patch.BotSettings.ReplyPrefix != "" {
		out.BotSettings.ReplyPrefix = patch.BotSettings.ReplyPrefix
	}
	if patch.BotSettings.ReplySuffix != "" {
		out.BotSettings.ReplySuffix = patch.BotSettings.ReplySuffix
	}
	for key, text := range patch.Messages {
		if text != "" {
			out.Messages[key] = text
		}
	}
	return out
}
