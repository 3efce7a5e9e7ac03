package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"

	"nanogov/governor/pkg/state"
)

// HashState returns the hex SHA-256 of the RFC 8785 canonical JSON form of
// st. Two snapshots hash equal exactly when every field and context entry is
// equal, regardless of context insertion order. Returns "" for a nil state.
func HashState(st *state.SystemState) (string, error) {
	if st == nil {
		return "", nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	return HashContent(canonical), nil
}

// HashContent computes the hex-encoded SHA-256 of content. Returns an empty
// string if content is empty.
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
