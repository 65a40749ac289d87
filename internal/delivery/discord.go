package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	DefaultDiscordAPI = "https://discord.com/api/v10"
	maxMessageRunes   = 2000
)

// DiscordNotifier posts replies through the Discord REST API with a bot token
type DiscordNotifier struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewDiscordNotifier(baseURL, token string, timeout time.Duration) *DiscordNotifier {
	if baseURL == "" {
		baseURL = DefaultDiscordAPI
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DiscordNotifier{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type discordMessage struct {
	Content          string                   `json:"content"`
	AllowedMentions  discordAllowedMentions   `json:"allowed_mentions"`
	MessageReference *discordMessageReference `json:"message_reference,omitempty"`
}

type discordAllowedMentions struct {
	Users []string `json:"users"`
}

type discordMessageReference struct {
	MessageID       string `json:"message_id"`
	FailIfNotExists bool   `json:"fail_if_not_exists"`
}

func (n *DiscordNotifier) Deliver(ctx context.Context, reply Reply) error {
	content := reply.Content
	msg := discordMessage{AllowedMentions: discordAllowedMentions{Users: []string{}}}
	if reply.MentionUserID != "" {
		content = fmt.Sprintf("<@%s> %s", reply.MentionUserID, content)
		msg.AllowedMentions.Users = []string{reply.MentionUserID}
	}
	msg.Content = truncate(content, maxMessageRunes)
	if reply.ReplyToMessageID != "" {
		msg.MessageReference = &discordMessageReference{MessageID: reply.ReplyToMessageID}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode discord message: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", n.baseURL, reply.ChannelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+n.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send discord message: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

// Ping fetches the bot's own user; used by the upstream health probe
func (n *DiscordNotifier) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/users/@me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord api status %d", resp.StatusCode)
	}
	return nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
