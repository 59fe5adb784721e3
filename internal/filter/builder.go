// Package filter accumulates subscription filter drafts and normalises
// them for a REQ.
package filter

import (
	"time"

	"nostr-threads/internal/types"
)

// Default date bounds applied by Build when a draft leaves them unset.
const (
	DefaultLookbackYears = 20
	DefaultLookahead     = 24 * time.Hour
)

// Builder collects filter drafts through chained calls. Predicates apply
// to the draft most recently opened with AddFilter; the first predicate
// on an empty builder opens one implicitly.
type Builder struct {
	drafts []*types.Filter
	now    func() time.Time
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{now: time.Now}
}

// WithClock overrides the time source used for default bounds.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// AddFilter opens a new draft.
func (b *Builder) AddFilter() *Builder {
	b.drafts = append(b.drafts, &types.Filter{})
	return b
}

func (b *Builder) current() *types.Filter {
	if len(b.drafts) == 0 {
		b.AddFilter()
	}
	return b.drafts[len(b.drafts)-1]
}

func (b *Builder) AddKind(kind types.Kind) *Builder {
	f := b.current()
	f.Kinds = append(f.Kinds, kind)
	return b
}

func (b *Builder) AddKinds(kinds []types.Kind) *Builder {
	f := b.current()
	f.Kinds = append(f.Kinds, kinds...)
	return b
}

func (b *Builder) AddAuthor(pubkey string) *Builder {
	f := b.current()
	f.Authors = append(f.Authors, pubkey)
	return b
}

func (b *Builder) AddAuthors(pubkeys []string) *Builder {
	f := b.current()
	f.Authors = append(f.Authors, pubkeys...)
	return b
}

func (b *Builder) AddEventID(id string) *Builder {
	f := b.current()
	f.IDs = append(f.IDs, id)
	return b
}

func (b *Builder) AddEventIDs(ids []string) *Builder {
	f := b.current()
	f.IDs = append(f.IDs, ids...)
	return b
}

// AddTaggedEventID matches events carrying an e-tag for id.
func (b *Builder) AddTaggedEventID(id string) *Builder {
	f := b.current()
	f.ETags = append(f.ETags, id)
	return b
}

func (b *Builder) AddTaggedEventIDs(ids []string) *Builder {
	f := b.current()
	f.ETags = append(f.ETags, ids...)
	return b
}

// AddTaggedPubKey matches events carrying a p-tag for pubkey.
func (b *Builder) AddTaggedPubKey(pubkey string) *Builder {
	f := b.current()
	f.PTags = append(f.PTags, pubkey)
	return b
}

func (b *Builder) AddTaggedPubKeys(pubkeys []string) *Builder {
	f := b.current()
	f.PTags = append(f.PTags, pubkeys...)
	return b
}

// AddTaggedKeyword matches events carrying a t-tag (hashtag).
func (b *Builder) AddTaggedKeyword(keyword string) *Builder {
	f := b.current()
	f.TTags = append(f.TTags, keyword)
	return b
}

func (b *Builder) AddTaggedKeywords(keywords []string) *Builder {
	f := b.current()
	f.TTags = append(f.TTags, keywords...)
	return b
}

// AddSearch sets the NIP-50 search text.
func (b *Builder) AddSearch(search string) *Builder {
	b.current().Search = search
	return b
}

func (b *Builder) WithFromDate(since time.Time) *Builder {
	ts := since.Unix()
	b.current().Since = &ts
	return b
}

func (b *Builder) WithToDate(until time.Time) *Builder {
	ts := until.Unix()
	b.current().Until = &ts
	return b
}

func (b *Builder) WithLimit(limit int) *Builder {
	b.current().Limit = &limit
	return b
}

// Build fills missing date bounds and drops drafts that have nothing but
// a date range or limit.
func (b *Builder) Build() []types.Filter {
	now := b.now()
	since := now.AddDate(-DefaultLookbackYears, 0, 0).Unix()
	until := now.Add(DefaultLookahead).Unix()

	out := make([]types.Filter, 0, len(b.drafts))
	for _, d := range b.drafts {
		if !d.HasPredicate() {
			continue
		}
		f := *d
		if f.Since == nil {
			s := since
			f.Since = &s
		}
		if f.Until == nil {
			u := until
			f.Until = &u
		}
		out = append(out, f)
	}
	return out
}
