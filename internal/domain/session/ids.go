package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSessionID returns a 16-char hex id (8 random bytes), the width
// spec §3 mandates for Session.id.
func GenerateSessionID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateActionID returns a 12-char hex id (6 random bytes), the width
// spec §3 mandates for SessionAction.id.
func GenerateActionID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating action id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
