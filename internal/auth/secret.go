package auth

import (
	"crypto/subtle"
	"strings"
)

// BearerToken extracts the credential from an "Authorization: Bearer x" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// SecretsEqual compares the daemon shared secret in constant time.
func SecretsEqual(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// NormalizeOrigin strips the IPv4-in-IPv6 prefix from a remote address.
func NormalizeOrigin(ip string) string {
	ip = strings.TrimSpace(ip)
	ip = strings.TrimPrefix(ip, "[")
	ip = strings.TrimSuffix(ip, "]")
	return strings.TrimPrefix(strings.ToLower(ip), "::ffff:")
}
