package httpkit

import "crypto/subtle"

// SecretEqual compares a presented shared secret against the configured
// one in constant time. An empty configured secret always rejects: an
// unconfigured deployment must not accept unauthenticated callers.
func SecretEqual(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
