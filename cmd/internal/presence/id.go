package presence

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"pipit/cmd/identity/ids"
)

// NewConnID returns a ULID used as the websocket connection id.
// ULIDs sort by time, which makes presence churn readable in logs.
func NewConnID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewMessageID returns a ULID used as the persisted message identity.
func NewMessageID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewRandomHex returns a cryptographically secure random hex string of
// length 2*nBytes, used for envelope ids. If nBytes <= 0, it defaults to
// 16 bytes.
func NewRandomHex(nBytes int) string {
	if nBytes <= 0 {
		nBytes = 16
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		// Callers treat empty as an error-like condition in logs.
		return ""
	}

	return hex.EncodeToString(b)
}
