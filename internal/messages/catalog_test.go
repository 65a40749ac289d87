package messages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMessage(t *testing.T) {
	c := Default()

	assert.Equal(t, "Message is too long. Trim it under 4000 characters.",
		c.Message(TooLong, map[string]string{"max_chars": "4000"}))
	assert.Equal(t, "Admin reply.", c.Message(ManualReplyDefault, nil))
	assert.Equal(t, c.Message(UnknownError, nil), c.Message("no_such_key", nil))
}

func TestFormat(t *testing.T) {
	c := Default()
	assert.Equal(t, "hello", c.Format("hello"))

	_, err := c.Update(Document{BotSettings: BotSettings{ReplyPrefix: ">>", ReplySuffix: "(bot)"}})
	require.NoError(t, err)
	assert.Equal(t, ">> hello (bot)", c.Format("hello"))
}

func TestLoad(t *testing.T) {
	t.Run("missing file is created from defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "messages.yaml")

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, Defaults().Messages[Duplicate], c.Message(Duplicate, nil))

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("file overrides merge over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "messages.yaml")
		data, err := yaml.Marshal(Document{Messages: map[string]string{Duplicate: "Asked already."}})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "Asked already.", c.Message(Duplicate, nil))
		assert.Equal(t, Defaults().Messages[Gibberish], c.Message(Gibberish, nil))
		assert.NotEmpty(t, c.SystemPrompt())
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "messages.yaml")
		require.NoError(t, os.WriteFile(path, []byte("messages: [unclosed"), 0o644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	c, err := Load(path)
	require.NoError(t, err)

	doc, err := c.Update(Document{Messages: map[string]string{RateLimitChat: "Slow down."}})
	require.NoError(t, err)
	assert.Equal(t, "Slow down.", doc.Messages[RateLimitChat])

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Slow down.", reloaded.Message(RateLimitChat, nil))

	_, err = c.Update(Document{Messages: map[string]string{"made_up": "x"}})
	assert.Error(t, err)

	snap := c.Snapshot()
	snap.Messages[RateLimitChat] = "mutated"
	assert.Equal(t, "Slow down.", c.Message(RateLimitChat, nil), "snapshot must not alias the catalog")
}
