package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sync"
)

// KeySet holds the digests of the accepted API keys.
type KeySet struct {
	mu      sync.RWMutex
	digests [][sha256.Size]byte
}

// NewKeySet creates a key set accepting keys. Empty keys are ignored.
func NewKeySet(keys []string) *KeySet {
	s := &KeySet{}
	s.Replace(keys)
	return s
}

// Replace swaps the accepted keys.
func (s *KeySet) Replace(keys []string) {
	digests := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	s.mu.Lock()
	s.digests = digests
	s.mu.Unlock()
}

// Len returns the number of accepted keys.
func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.digests)
}

// Validate reports whether key is accepted and returns its identifier. Every
// stored digest is compared so the time taken does not depend on which key
// matched.
func (s *KeySet) Validate(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(key))

	s.mu.RLock()
	defer s.mu.RUnlock()
	match := 0
	for _, d := range s.digests {
		match |= subtle.ConstantTimeCompare(sum[:], d[:])
	}
	if match != 1 {
		return "", false
	}
	return KeyIdentifier(key), true
}

// KeyIdentifier is the loggable identifier of key: the first 8 hex digits
// of its SHA-256.
func KeyIdentifier(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
