// Package security provides identifiers, session tokens, caller identity
// hashing and the evaluator invocation limiter.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateULID generates a new ULID string for persisted records.
func GenerateULID() string {
	return ulid.Make().String()
}

// NewSessionID returns a random identifier for a live session.
func NewSessionID() string {
	return uuid.NewString()
}

// IsSessionID reports whether s parses as a session identifier.
func IsSessionID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// GenerateSecureKey creates a cryptographically secure random key and returns it as a hex string.
// This is ideal for generating JWT secrets.
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length/2) // Each byte becomes two hex characters
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
