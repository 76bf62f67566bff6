package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const apiKeyPrefixLength = 8

type GeneratedKey struct {
	Key    string
	Prefix string
	Hash   string
}

// GenerateAPIKey returns 16 random bytes hex encoded. Only Hash and Prefix are
// meant to be persisted.
func GenerateAPIKey() (GeneratedKey, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return GeneratedKey{}, err
	}
	key := hex.EncodeToString(raw)
	return GeneratedKey{Key: key, Prefix: key[:apiKeyPrefixLength], Hash: HashAPIKey(key)}, nil
}

func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
