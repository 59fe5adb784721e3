package nostr

import (
	"crypto/sha256"
	"encoding/hex"

	"nostr-threads/internal/types"
)

// SignableProjection returns the NIP-01 array that is hashed for the
// event id: [0, pubkey, created_at, kind, tags, content]. Id and sig are
// not part of it.
func SignableProjection(evt *types.Event) []interface{} {
	tags := evt.Tags
	if tags == nil {
		tags = []types.Tag{}
	}
	return []interface{}{
		0,
		evt.PubKey,
		evt.CreatedAt,
		evt.Kind,
		tags,
		evt.Content,
	}
}

// SerializeSignable writes the signable projection as compact JSON with
// HTML characters and line separators left unescaped, as relays expect.
func SerializeSignable(evt *types.Event) (string, error) {
	serialized, err := types.MarshalCanonical(SignableProjection(evt))
	if err != nil {
		return "", err
	}
	return string(serialized), nil
}

// HashHex returns the lowercase hex SHA-256 of s.
func HashHex(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// ComputeEventID recomputes the id from the event's signable fields.
func ComputeEventID(evt *types.Event) (string, error) {
	serialized, err := SerializeSignable(evt)
	if err != nil {
		return "", err
	}
	return HashHex(serialized), nil
}

// ShortID truncates ID/pubkey to 12 chars for logging
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}
