package service

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// fingerprint returns a short stable digest so audit entries can be correlated
// without storing the raw value.
func fingerprint(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}

func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ""
	}
	return email[:1] + "***" + email[at:]
}
