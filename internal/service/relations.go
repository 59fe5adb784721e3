package service

import (
	"context"
	"log/slog"
	"strings"

	"nostr-threads/internal/filter"
	"nostr-threads/internal/graph"
	"nostr-threads/internal/nips"
	"nostr-threads/internal/nostr"
	"nostr-threads/internal/types"
)

// Markers as they are matched on inbound e-tags.
// TODO: CreateEvent writes types.MarkerRoot/MarkerReply in lower case, so
// our own replies never produce EventRoot/EventParent edges; switch these
// to the lower-case constants once the relays we read are confirmed to
// use NIP-10 casing.
const (
	inboundRootMarker  = "Root"
	inboundReplyMarker = "Reply"
)

// processRelations records every edge one event implies. Callers hold
// relMu.
func (s *Service) processRelations(msg *types.ProtocolMessage) {
	evt := msg.Event

	s.graph.AddRelation(evt.PubKey, graph.EventsByUser, evt.ID)
	s.graph.AddRelation(evt.ID, graph.UserByEvent, evt.PubKey)
	// only discovery subscriptions (LookupUser) collect the authors they find
	if msg.SubscriptionID != "" && s.graph.RelationExists(msg.SubscriptionID, graph.SubscriptionGUIDToIDs) {
		s.graph.AddRelation(msg.SubscriptionID, graph.SubscriptionGUIDToIDs, evt.PubKey)
	}

	for prefix, ids := range s.scanner.Scan(evt.Content) {
		for _, id := range ids {
			s.relateEmbed(evt, prefix, id)
		}
	}

	for _, tag := range evt.Tags {
		if tag.Key != types.TagEvent {
			continue
		}
		target := tag.Value(1)
		if target == "" {
			continue
		}
		s.graph.AddRelation(target, graph.EventChildren, evt.ID)

		switch tag.Value(3) {
		case inboundRootMarker:
			s.graph.AddRelation(evt.ID, graph.EventRoot, target)
		case inboundReplyMarker:
			s.graph.AddRelation(evt.ID, graph.EventParent, target)
		}
	}
}

func (s *Service) relateEmbed(evt *types.Event, prefix, id string) {
	switch {
	case strings.Contains(prefix, nips.PrefixNEvent):
		fields, err := nips.Bech32ToTLV(nips.PrefixNEvent, id)
		if err != nil {
			slog.Debug("skipping undecodable embed", "event_id", nostr.ShortID(evt.ID), "embed", id, "error", err)
			return
		}
		if ref := fields[nips.TLVSpecial]; ref != "" {
			s.graph.AddRelation(evt.ID, graph.ReferencedEvent, ref)
		}
		if author := fields[nips.TLVAuthor]; author != "" {
			s.graph.AddRelation(evt.ID, graph.UserByEvent, author)
		}

	case strings.Contains(prefix, nips.PrefixNProfile):
		fields, err := nips.Bech32ToTLV(nips.PrefixNProfile, id)
		if err != nil {
			slog.Debug("skipping undecodable embed", "event_id", nostr.ShortID(evt.ID), "embed", id, "error", err)
			return
		}
		if pk := fields[nips.TLVSpecial]; pk != "" {
			s.graph.AddRelation(evt.ID, graph.EventMentionsUser, pk)
		}
	}
}

// endOfFetch plans the next round for a finished subscription and runs
// it in the background.
func (s *Service) endOfFetch(ctx context.Context, subID string) {
	filters := s.nextRound(subID)
	if len(filters) == 0 {
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		next := s.Fetch(ctx, filters, "", types.MessageReq)
		slog.Debug("follow-up fetch", "after", subID, "sub", next, "filters", len(filters))
	}()
}

// nextRound derives follow-up filters from what a subscription found:
//
//   - replies to the page's top-level events,
//   - events those top-level events embed,
//   - metadata of the top-level authors not already stored,
//   - metadata of authors of previously referenced events that have
//     since arrived.
//
// Subscriptions that did not start a page yield nothing.
func (s *Service) nextRound(subID string) []types.Filter {
	s.relMu.Lock()
	defer s.relMu.Unlock()

	roots, ok := s.graph.TryGetRelation(subID, graph.RootLevelSubscription)
	if !ok || len(roots) == 0 {
		return nil
	}
	rootID := roots[0]

	topLevel, ok := s.graph.TryGetRelation(rootID, graph.EventChildren)
	if !ok {
		topLevel, _ = s.graph.TryGetRelation(rootID, graph.EventsByUser)
	}

	b := filter.New().WithClock(s.now)

	if len(topLevel) > 0 {
		b.AddFilter().AddKind(types.KindText).AddTaggedEventIDs(topLevel)
	}

	if refs, ok := s.graph.TryGetRelations(topLevel, graph.ReferencedEvent); ok && len(refs) > 0 {
		b.AddFilter().AddKind(types.KindText).AddEventIDs(refs)
		s.queuePending(refs)
	}

	withRoot := append(append([]string(nil), topLevel...), rootID)
	if authors, ok := s.graph.TryGetRelations(withRoot, graph.UserByEvent); ok {
		if missing := s.missingMetadata(authors); len(missing) > 0 {
			b.AddFilter().AddKind(types.KindMetadata).AddAuthors(missing)
		}
	}

	if resolved := s.resolvePending(); len(resolved) > 0 {
		b.AddFilter().AddKind(types.KindMetadata).AddAuthors(resolved)
	}

	return b.Build()
}

func (s *Service) missingMetadata(authors []string) []string {
	var out []string
	for _, pk := range authors {
		if _, ok := s.store.Load(pk); !ok {
			out = append(out, pk)
		}
	}
	return out
}

func (s *Service) queuePending(ids []string) {
	for _, id := range ids {
		queued := false
		for _, p := range s.pending {
			if p == id {
				queued = true
				break
			}
		}
		if !queued {
			s.pending = append(s.pending, id)
		}
	}
}

// resolvePending takes referenced events that have arrived off the queue
// and returns their authors whose metadata is still missing. Ids not yet
// stored stay queued for a later round.
func (s *Service) resolvePending() []string {
	var (
		still   []string
		authors []string
		seen    = make(map[string]bool)
	)
	for _, id := range s.pending {
		msg, ok := s.store.Load(id)
		if !ok {
			still = append(still, id)
			continue
		}
		pk := msg.Event.PubKey
		if pk == "" || seen[pk] {
			continue
		}
		seen[pk] = true
		if _, known := s.store.Load(pk); !known {
			authors = append(authors, pk)
		}
	}
	s.pending = still
	return authors
}
