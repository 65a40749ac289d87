package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	limits := Limits{MinChars: 5, MaxChars: 4000}

	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty string", "", ReasonEmpty},
		{"whitespace only", "   \n\t ", ReasonEmpty},
		{"greeting is trivial", "hi", ReasonTrivial},
		{"trivial ignores case and padding", "  HeLLo ", ReasonTrivial},
		{"ping is trivial", "ping", ReasonTrivial},
		{"short question", "why?", ReasonTooShort},
		{"too long", strings.Repeat("explain gravity please ", 200), ReasonTooLong},
		{"single repeated letter", "aaaaaaaa", ReasonGibberish},
		{"two letter alternation", "abababab", ReasonGibberish},
		{"repeated unit", "asdasdasd", ReasonGibberish},
		{"keyboard row", "qwerty stuff", ReasonGibberish},
		{"reversed keyboard row", "lkjh what", ReasonGibberish},
		{"no vowels", "brrr zzt kkt", ReasonGibberish},
		{"stretched letters", "heeeeeelp me now", ReasonGibberish},
		{"real question", "What is the capital of France?", ""},
		{"question with numbers", "Is 42 the answer to everything?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Classify(tt.input, limits)
			if tt.reason == "" {
				assert.True(t, result.Accepted, "expected %q to be accepted, got %s", tt.input, result.Reason)
				return
			}
			assert.False(t, result.Accepted)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}
}

func TestClassifyDefaults(t *testing.T) {
	t.Run("zero limits fall back to defaults", func(t *testing.T) {
		result := Classify("abc d", Limits{})
		assert.True(t, result.Accepted)

		long := Classify(strings.Repeat("tell me a story ", 300), Limits{})
		assert.Equal(t, ReasonTooLong, long.Reason)
	})

	t.Run("custom bounds are honored", func(t *testing.T) {
		result := Classify("Tell me something", Limits{MinChars: 20, MaxChars: 100})
		assert.Equal(t, ReasonTooShort, result.Reason)

		result = Classify("Tell me something nice", Limits{MinChars: 5, MaxChars: 10})
		assert.Equal(t, ReasonTooLong, result.Reason)
	})

	t.Run("length counts runes not bytes", func(t *testing.T) {
		result := Classify("ñandú", Limits{MinChars: 5, MaxChars: 5})
		assert.NotEqual(t, ReasonTooLong, result.Reason)
		assert.NotEqual(t, ReasonTooShort, result.Reason)
	})
}
