package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// generateID returns a random 32-character hex identifier.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
