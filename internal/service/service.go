// Package service orchestrates fetching, publishing and the processing
// of everything relays send back.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"nostr-threads/internal/graph"
	"nostr-threads/internal/nips"
	"nostr-threads/internal/nostr"
	"nostr-threads/internal/relay"
	"nostr-threads/internal/signing"
	"nostr-threads/internal/types"
)

// Pool is the relay side the service talks to.
type Pool interface {
	QueryRelays(ctx context.Context, subID string, msgType types.MessageType, filters []types.Filter, timeout time.Duration)
	SendEvent(ctx context.Context, evt *types.Event, subscriptionHash string)
	Inbound() <-chan relay.Received
}

// EmbedScanner finds bech32 references in content, grouped by prefix.
type EmbedScanner interface {
	Scan(content string) map[string][]string
}

// Notifier is told when a subscription reaches end of stream.
type Notifier interface {
	UpdateState()
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func()

func (f NotifierFunc) UpdateState() { f() }

// Options configure a Service.
type Options struct {
	QueryTimeout time.Duration
	// VerifySignatures recomputes the id and checks the signature of
	// every inbound event before it is stored or related.
	VerifySignatures bool
	Scanner          EmbedScanner
	Notifier         Notifier
	Now              func() time.Time
}

// Service is the message pipeline. Its store and graph live as long as
// the service.
type Service struct {
	pool     Pool
	graph    *graph.Graph
	engine   *signing.Engine
	session  *signing.Session
	scanner  EmbedScanner
	notifier Notifier
	opts     Options
	now      func() time.Time

	// metadata events keyed by pubkey, text events keyed by id
	store   *xsync.MapOf[string, *types.ProtocolMessage]
	storeMu sync.Mutex

	relMu   sync.Mutex // whole-event relation extraction and follow-up planning
	pending []string   // referenced event ids waiting for their author's metadata

	background sync.WaitGroup
}

// New wires a service. g is shared with anything else that reads the
// relation graph.
func New(pool Pool, g *graph.Graph, engine *signing.Engine, session *signing.Session, opts Options) *Service {
	s := &Service{
		pool:     pool,
		graph:    g,
		engine:   engine,
		session:  session,
		scanner:  opts.Scanner,
		notifier: opts.Notifier,
		opts:     opts,
		now:      opts.Now,
		store:    xsync.NewMapOf[string, *types.ProtocolMessage](),
	}
	if s.scanner == nil {
		s.scanner = nips.Scanner{}
	}
	if s.notifier == nil {
		s.notifier = NotifierFunc(func() {})
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Graph returns the relation graph.
func (s *Service) Graph() *graph.Graph { return s.graph }

// Stored returns the stored message for a pubkey (metadata) or event id
// (text note).
func (s *Service) Stored(key string) (*types.ProtocolMessage, bool) {
	return s.store.Load(key)
}

// StoreLen returns the number of stored events.
func (s *Service) StoreLen() int { return s.store.Size() }

// Wait blocks until background follow-up fetches have returned.
func (s *Service) Wait() { s.background.Wait() }

// Run consumes the inbound stream until ctx ends or the stream closes.
// It must be the only consumer; ProcessReceivedMessages must not be
// called while Run is active.
func (s *Service) Run(ctx context.Context) error {
	in := s.pool.Inbound()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-in:
			if !ok {
				return nil
			}
			s.handle(ctx, r)
			s.ProcessReceivedMessages(ctx)
		}
	}
}

// ProcessReceivedMessages handles queued messages until the queue is
// empty and returns how many it took. Calls must not overlap.
func (s *Service) ProcessReceivedMessages(ctx context.Context) int {
	in := s.pool.Inbound()
	n := 0
	for {
		select {
		case r, ok := <-in:
			if !ok {
				return n
			}
			s.handle(ctx, r)
			n++
		default:
			return n
		}
	}
}

func (s *Service) handle(ctx context.Context, r relay.Received) {
	msg := r.Message
	if msg == nil {
		return
	}

	if msg.Type == types.MessageEose {
		slog.Debug("end of stored events", "relay", r.RelayURI, "sub", msg.SubscriptionID)
		s.endOfFetch(ctx, msg.SubscriptionID)
		s.notifier.UpdateState()
		return
	}

	evt := msg.Event
	if evt == nil {
		return
	}

	if s.opts.VerifySignatures && !s.checkInbound(evt) {
		slog.Debug("dropping unverifiable event", "relay", r.RelayURI, "event_id", nostr.ShortID(evt.ID))
		return
	}

	s.storeEvent(msg)

	s.relMu.Lock()
	s.processRelations(msg)
	s.relMu.Unlock()
}

// checkInbound recomputes the id and verifies the signature.
func (s *Service) checkInbound(evt *types.Event) bool {
	id, err := nostr.ComputeEventID(evt)
	if err != nil || id != evt.ID {
		return false
	}
	evt.Verified = s.Verify(evt)
	return evt.Verified
}

// storeEvent keeps the first metadata event per author and the first
// copy of each text note.
func (s *Service) storeEvent(msg *types.ProtocolMessage) {
	var key string
	switch msg.Event.Kind {
	case types.KindMetadata:
		key = msg.Event.PubKey
	case types.KindText:
		key = msg.Event.ID
	}
	if key == "" {
		return
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if _, loaded := s.store.LoadOrStore(key, msg); !loaded {
		slog.Debug("stored event", "kind", msg.Event.Kind, "key", nostr.ShortID(key))
	}
}
