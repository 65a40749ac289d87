package validator

import (
	"strings"
	"unicode/utf8"
)

// Rejection reasons
const (
	ReasonEmpty     = "empty"
	ReasonTrivial   = "trivial"
	ReasonTooShort  = "too_short"
	ReasonTooLong   = "too_long"
	ReasonGibberish = "gibberish"
)

type Limits struct {
	MinChars int // Default: 5
	MaxChars int // Default: 4000
}

type Result struct {
	Accepted bool
	Reason   string
}

var trivialPhrases = map[string]struct{}{
	"hi":    {},
	"hey":   {},
	"hello": {},
	"test":  {},
	"ping":  {},
	"yo":    {},
	"sup":   {},
}

var keyboardRows = []string{
	"qwertyuiop",
	"asdfghjkl",
	"zxcvbnm",
	"1234567890",
}

// Classify decides whether raw input is worth sending to the backend.
// Checks run in order and the first match wins: empty, trivial, too short,
// too long, gibberish. Trivial phrases are matched before the length bounds so
// a bare greeting is always reported as trivial.
func Classify(raw string, limits Limits) Result {
	if limits.MinChars <= 0 {
		limits.MinChars = 5
	}
	if limits.MaxChars <= 0 {
		limits.MaxChars = 4000
	}

	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return reject(ReasonEmpty)
	}

	if _, ok := trivialPhrases[strings.ToLower(cleaned)]; ok {
		return reject(ReasonTrivial)
	}

	length := utf8.RuneCountInString(cleaned)
	if length < limits.MinChars {
		return reject(ReasonTooShort)
	}
	if length > limits.MaxChars {
		return reject(ReasonTooLong)
	}

	if looksGibberish(cleaned) {
		return reject(ReasonGibberish)
	}

	return Result{Accepted: true}
}

func reject(reason string) Result {
	return Result{Accepted: false, Reason: reason}
}

func looksGibberish(text string) bool {
	lower := strings.ToLower(text)

	var b strings.Builder
	for _, r := range lower {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	letters := b.String()

	if len(letters) < 4 {
		return false
	}

	unique := make(map[rune]struct{})
	for _, r := range letters {
		unique[r] = struct{}{}
	}

	// "aaaaaa", "ababab"
	if len(unique) <= 2 && len(letters) >= 6 {
		return true
	}

	if repeatsShortUnit(letters) {
		return true
	}

	if containsKeyboardRun(lower) {
		return true
	}

	vowels := 0
	for _, r := range letters {
		switch r {
		case 'a', 'e', 'i', 'o', 'u':
			vowels++
		}
	}
	if len(letters) >= 6 {
		if vowels == 0 {
			return true
		}
		consonants := len(letters) - vowels
		if float64(consonants)/float64(len(letters)) > 0.85 {
			return true
		}
	}

	return longestRun(letters) > 4
}

// Whole string is a 1-4 letter unit repeated at least three times ("asdasdasd")
func repeatsShortUnit(s string) bool {
	for size := 1; size <= 4; size++ {
		if len(s)%size != 0 || len(s)/size < 3 {
			continue
		}
		unit := s[:size]
		if strings.Repeat(unit, len(s)/size) == s {
			return true
		}
	}
	return false
}

// Four or more adjacent keys from one keyboard row, in either direction
func containsKeyboardRun(s string) bool {
	for _, row := range keyboardRows {
		for i := 0; i+4 <= len(row); i++ {
			forward := row[i : i+4]
			if strings.Contains(s, forward) || strings.Contains(s, reverse(forward)) {
				return true
			}
		}
	}
	return false
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

func longestRun(s string) int {
	longest, current := 0, 0
	var prev byte
	for i := 0; i < len(s); i++ {
		if i > 0 && s[i] == prev {
			current++
		} else {
			current = 1
		}
		prev = s[i]
		if current > longest {
			longest = current
		}
	}
	return longest
}
