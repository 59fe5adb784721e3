package nips

import (
	"regexp"
	"strings"
)

// NIP-27 references inside note content, e.g. "nostr:nevent1..."
var embedPattern = regexp.MustCompile(`nostr:((?:nevent|nprofile)1[02-9ac-hj-np-z]+)`)

// Scanner finds embedded nostr: references in content.
type Scanner struct{}

// Scan returns raw identifiers grouped by their bech32 prefix
// ("nevent", "nprofile"). Duplicates within one content are collapsed.
func (Scanner) Scan(content string) map[string][]string {
	out := make(map[string][]string)
	if !strings.Contains(content, "nostr:") {
		return out
	}

	seen := make(map[string]bool)
	for _, m := range embedPattern.FindAllStringSubmatch(content, -1) {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true

		prefix := id[:strings.IndexByte(id, '1')]
		out[prefix] = append(out[prefix], id)
	}
	return out
}
