package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
)

// Guard remembers recent submissions by content fingerprint.
type Guard interface {
	// Marks the fingerprint as seen and reports whether it was already seen
	// within window. Check and mark happen atomically.
	Seen(ctx context.Context, fingerprint string, window time.Duration, now time.Time) (bool, error)
}

// Fingerprint identifies identical content from one user to one command kind
func Fingerprint(communityID, userID string, kind models.CommandKind, content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return communityID + ":" + userID + ":" + string(kind) + ":" + hex.EncodeToString(sum[:])
}
