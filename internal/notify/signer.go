// Package notify provides webhook delivery and signing functionality.
package notify

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReplayWindowExceeded is returned when timestamp is outside replay window.
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
)

const (
	// DefaultReplayWindow is the default replay protection window.
	DefaultReplayWindow = 5 * time.Minute

	// SecretPrefix marks webhook signing secrets for easy identification.
	SecretPrefix = "whsec_"
)

// GenerateSignature creates HMAC-SHA256 signature for a webhook payload.
// The canonical string format is: "{timestamp}.{payloadJSON}"
func GenerateSignature(secret string, timestamp int64, payloadJSON []byte) string {
	canonical := fmt.Sprintf("%d.%s", timestamp, string(payloadJSON))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature verifies a webhook signature with replay protection.
func ValidateSignature(secret, signature string, timestamp int64, payloadJSON []byte, replayWindow time.Duration) error {
	// Check replay window
	now := time.Now().Unix()
	if abs(now-timestamp) > int64(replayWindow.Seconds()) {
		return ErrReplayWindowExceeded
	}

	expected := GenerateSignature(secret, timestamp, payloadJSON)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}

	return nil
}

// GenerateSecret creates a cryptographically secure random signing secret.
// The secret is shown to the org admin once at creation time.
func GenerateSecret() (string, error) {
	// 32 bytes = 256 bits of entropy
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
