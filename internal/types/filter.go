package types

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []Kind   `json:"kinds,omitempty"`
	ETags   []string `json:"#e,omitempty"`
	PTags   []string `json:"#p,omitempty"`
	TTags   []string `json:"#t,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
	Search  string   `json:"search,omitempty"` // NIP-50 search query
}

// HasPredicate reports whether the filter narrows results by anything
// other than a date range or limit.
func (f *Filter) HasPredicate() bool {
	return len(f.IDs) > 0 || len(f.Authors) > 0 || len(f.Kinds) > 0 ||
		len(f.ETags) > 0 || len(f.PTags) > 0 || len(f.TTags) > 0 || f.Search != ""
}
