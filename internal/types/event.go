// Package types provides shared type definitions used across internal packages.
package types

import (
	"encoding/json"
	"errors"
)

// Kind is the NIP-01 event kind.
type Kind int

const (
	KindMetadata               Kind = 0
	KindText                   Kind = 1
	KindRecommendRelay         Kind = 2
	KindContacts               Kind = 3
	KindEncryptedDirectMessage Kind = 4
	KindEventDeletion          Kind = 5
	KindRepost                 Kind = 6
	KindReaction               Kind = 7
	KindChannelCreation        Kind = 40
	KindChannelMetadata        Kind = 41
	KindChannelMessage         Kind = 42
	KindChannelHideMessage     Kind = 43
	KindChannelMuteUser        Kind = 44
	KindPublicChatReserved     Kind = 45
	KindReplaceableStart       Kind = 10000
	KindRelayListMetadata      Kind = 10002
	KindEphemeralStart         Kind = 20000
	KindNostrConnect           Kind = 24133
	KindCommunity              Kind = 34550
)

// TagKey is the first element of a tag array.
type TagKey string

const (
	TagEvent      TagKey = "e"
	TagPubKey     TagKey = "p"
	TagAddress    TagKey = "a"
	TagURL        TagKey = "r"
	TagTopic      TagKey = "t"
	TagGeohash    TagKey = "g"
	TagNonce      TagKey = "nonce"
	TagSubject    TagKey = "subject"
	TagIdentifier TagKey = "d"
	TagExpiration TagKey = "expiration"
	TagQuote      TagKey = "q"
	TagImageMeta  TagKey = "imeta"
	TagProxy      TagKey = "proxy"
)

// Relation markers written at position 3 of event-ref tags.
const (
	MarkerRoot  = "root"
	MarkerReply = "reply"
)

var errTagShape = errors.New("tag must be a non-empty array of strings")

// Tag is a typed key followed by positional values. Values beyond the
// last present one are absent, so a tag never carries trailing gaps.
type Tag struct {
	Key    TagKey
	Values []string
}

// NewTag builds a tag, trimming trailing empty values.
func NewTag(key TagKey, values ...string) Tag {
	end := len(values)
	for end > 0 && values[end-1] == "" {
		end--
	}
	return Tag{Key: key, Values: append([]string(nil), values[:end]...)}
}

// Value returns the value at position i (1-based, matching the wire
// array index) or "" if absent.
func (t Tag) Value(i int) string {
	if i < 1 || i > len(t.Values) {
		return ""
	}
	return t.Values[i-1]
}

// MarshalJSON writes the tag as a flat array in canonical form.
func (t Tag) MarshalJSON() ([]byte, error) {
	arr := make([]string, 0, len(t.Values)+1)
	arr = append(arr, string(t.Key))
	arr = append(arr, t.Values...)

	return MarshalCanonical(arr)
}

// UnmarshalJSON reads a flat array of strings.
func (t *Tag) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) == 0 {
		return errTagShape
	}
	t.Key = TagKey(arr[0])
	t.Values = arr[1:]
	return nil
}

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      Kind   `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
	Verified  bool   `json:"-"`
}

// TagValues returns position-1 values of every tag with the given key.
func (e *Event) TagValues(key TagKey) []string {
	var out []string
	for _, t := range e.Tags {
		if t.Key == key && len(t.Values) > 0 {
			out = append(out, t.Values[0])
		}
	}
	return out
}

// RootID returns the event id of the first e-tag marked "root".
func (e *Event) RootID() string {
	return e.markedEventRef(MarkerRoot)
}

// ParentID returns the event id of the first e-tag marked "reply".
func (e *Event) ParentID() string {
	return e.markedEventRef(MarkerReply)
}

func (e *Event) markedEventRef(marker string) string {
	for _, t := range e.Tags {
		if t.Key == TagEvent && t.Value(3) == marker {
			return t.Value(1)
		}
	}
	return ""
}
