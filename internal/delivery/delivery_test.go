package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier(t *testing.T) {
	t.Run("posts mention and content to the channel", func(t *testing.T) {
		var got discordMessage
		var path, auth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			auth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"id":"1"}`))
		}))
		defer srv.Close()

		n := NewDiscordNotifier(srv.URL, "secret", 0)
		err := n.Deliver(context.Background(), Reply{
			ChannelID:        "c42",
			Content:          "no.",
			MentionUserID:    "u7",
			ReplyToMessageID: "m9",
		})
		require.NoError(t, err)

		assert.Equal(t, "/channels/c42/messages", path)
		assert.Equal(t, "Bot secret", auth)
		assert.Equal(t, "<@u7> no.", got.Content)
		assert.Equal(t, []string{"u7"}, got.AllowedMentions.Users)
		require.NotNil(t, got.MessageReference)
		assert.Equal(t, "m9", got.MessageReference.MessageID)
	})

	t.Run("error status is returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"Missing Access"}`))
		}))
		defer srv.Close()

		n := NewDiscordNotifier(srv.URL, "secret", 0)
		err := n.Deliver(context.Background(), Reply{ChannelID: "c", Content: "hi there"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
		assert.Contains(t, err.Error(), "Missing Access")
	})

	t.Run("long content is truncated", func(t *testing.T) {
		var got discordMessage
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
		}))
		defer srv.Close()

		n := NewDiscordNotifier(srv.URL, "secret", 0)
		require.NoError(t, n.Deliver(context.Background(), Reply{ChannelID: "c", Content: strings.Repeat("ж", 5000)}))
		assert.Equal(t, maxMessageRunes, utf8.RuneCountInString(got.Content))
	})
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(nil).Deliver(context.Background(), Reply{ChannelID: "c", Content: "x"}))
}
