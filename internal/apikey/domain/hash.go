package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SecretHexLen is the length of the hex secret that follows KeyPrefix.
const SecretHexLen = 64

// HashAPIKey is the lookup digest stored in api_keys.key_hash. Plaintext keys
// are shown once at creation and never persisted.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// WellFormed reports whether token has the shape of an issued key:
// KeyPrefix followed by SecretHexLen lowercase hex characters.
func WellFormed(token string) bool {
	secret, ok := strings.CutPrefix(token, KeyPrefix)
	if !ok || len(secret) != SecretHexLen {
		return false
	}
	for i := 0; i < len(secret); i++ {
		c := secret[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
