package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nostr-threads/internal/filter"
	"nostr-threads/internal/graph"
	"nostr-threads/internal/types"
)

const (
	pageRecentLimit  = 5
	lookupUserLimit  = 10
	defaultPageAhead = 24 * time.Hour
)

// Fetch queries every relay with filters under subID (a fresh id when
// empty) and returns the id used. No filters means no query.
func (s *Service) Fetch(ctx context.Context, filters []types.Filter, subID string, msgType types.MessageType) string {
	if len(filters) == 0 {
		return ""
	}
	if subID == "" {
		subID = uuid.NewString()
	}
	s.pool.QueryRelays(ctx, subID, msgType, filters, s.opts.QueryTimeout)
	return subID
}

// FetchPage requests a thread page for hex, which may be an event id or
// an author: the event itself, replies tagging it, and the author's
// latest notes. until defaults to one day ahead.
func (s *Service) FetchPage(ctx context.Context, hex string, until time.Time) string {
	if until.IsZero() {
		until = s.now().Add(defaultPageAhead)
	}

	filters := filter.New().WithClock(s.now).
		AddFilter().AddKind(types.KindText).AddEventID(hex).
		AddFilter().AddKind(types.KindText).WithToDate(until).AddTaggedEventID(hex).
		AddFilter().AddKind(types.KindText).WithToDate(until).WithLimit(pageRecentLimit).AddAuthor(hex).
		Build()

	subID := uuid.NewString()
	s.graph.AddRelation(subID, graph.RootLevelSubscription, hex)
	return s.Fetch(ctx, filters, subID, types.MessageReq)
}

// LookupUser searches profiles once per distinct search string. It
// returns the subscription id and whether a query was issued.
func (s *Service) LookupUser(ctx context.Context, search string) (string, bool) {
	s.relMu.Lock()
	if s.graph.RelationExists(search, graph.SearchToSubscriptionID) {
		s.relMu.Unlock()
		return "", false
	}
	subID := uuid.NewString()
	s.graph.AddRelation(subID, graph.SubscriptionGUIDToIDs, subID)
	s.graph.AddRelation(search, graph.SearchToSubscriptionID, subID)
	s.relMu.Unlock()

	filters := filter.New().WithClock(s.now).
		AddFilter().AddKind(types.KindMetadata).AddSearch(search).WithLimit(lookupUserLimit).
		Build()
	return s.Fetch(ctx, filters, subID, types.MessageReq), true
}
