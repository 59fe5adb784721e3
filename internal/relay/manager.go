// Package relay maintains connections to Nostr relays, fans queries and
// events out to them and funnels everything they send into one channel.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"nostr-threads/internal/nostr"
	"nostr-threads/internal/types"
)

// Fan-out defaults.
const (
	DefaultMaxInFlight  = 5
	DefaultQueryTimeout = 15000 * time.Millisecond
	DefaultInboxSize    = 4096
)

// Options tune a Manager.
type Options struct {
	MaxInFlight  int64         // concurrent relay attempts per fan-out
	QueryTimeout time.Duration // wait for a fan-out slot during queries
	InboxSize    int
	AllowPrivate bool // accept private/internal relay hosts in TryAddURI
}

func (o Options) withDefaults() Options {
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = DefaultMaxInFlight
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	if o.InboxSize <= 0 {
		o.InboxSize = DefaultInboxSize
	}
	return o
}

// Manager owns the relay connections.
type Manager struct {
	dialer Dialer
	opts   Options
	conns  *xsync.MapOf[string, *Connection]
	inbox  chan Received
	opens  singleflight.Group
	stats  stats
}

// NewManager creates a manager with no relays.
func NewManager(dialer Dialer, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		dialer: dialer,
		opts:   opts,
		conns:  xsync.NewMapOf[string, *Connection](),
		inbox:  make(chan Received, opts.InboxSize),
	}
}

// Inbound is the single stream of messages from every relay. It has one
// intended consumer.
func (m *Manager) Inbound() <-chan Received {
	return m.inbox
}

func (m *Manager) enqueue(ctx context.Context, r Received) {
	select {
	case m.inbox <- r:
	case <-ctx.Done():
	}
}

func (m *Manager) newConnection(uri string) *Connection {
	return newConnection(uri, m.dialer, m.enqueue, &m.stats)
}

// Relays returns the registered relay URLs, sorted.
func (m *Manager) Relays() []string {
	var uris []string
	m.conns.Range(func(uri string, _ *Connection) bool {
		uris = append(uris, uri)
		return true
	})
	sort.Strings(uris)
	return uris
}

// Connection returns the connection registered for uri.
func (m *Manager) Connection(uri string) (*Connection, bool) {
	return m.conns.Load(uri)
}

// TryAddURI registers a relay without connecting. It returns false if
// the relay is already known or its URL is rejected.
func (m *Manager) TryAddURI(uri string) bool {
	normalized, err := NormalizeRelayURL(uri, m.opts.AllowPrivate)
	if err != nil {
		slog.Warn("rejecting relay", "relay", uri, "error", err)
		return false
	}

	added := false
	m.conns.LoadOrCompute(normalized, func() *Connection {
		added = true
		return m.newConnection(normalized)
	})
	return added
}

// OpenConnection connects to uri unless it is already open. Concurrent
// calls for the same uri share one dial.
func (m *Manager) OpenConnection(ctx context.Context, uri string) error {
	if c, ok := m.conns.Load(uri); ok && c.IsOpen() {
		return nil
	}

	_, err, _ := m.opens.Do(uri, func() (interface{}, error) {
		c, _ := m.conns.LoadOrCompute(uri, func() *Connection {
			return m.newConnection(uri)
		})
		if c.IsOpen() {
			return nil, nil
		}
		return nil, c.Init(ctx)
	})
	return err
}

// CloseConnection removes the relay and closes its connection.
func (m *Manager) CloseConnection(ctx context.Context, uri string) error {
	c, ok := m.conns.LoadAndDelete(uri)
	if !ok {
		return nil
	}
	return c.Close(ctx)
}

// Close closes every connection.
func (m *Manager) Close(ctx context.Context) {
	var wg sync.WaitGroup
	for _, uri := range m.Relays() {
		wg.Add(1)
		go func(uri string) {
			defer wg.Done()
			if err := m.CloseConnection(ctx, uri); err != nil {
				slog.Warn("relay close failed", "relay", uri, "error", err)
			}
		}(uri)
	}
	wg.Wait()
}

// QueryRelays opens (if needed) and subscribes on every relay, at most
// MaxInFlight at a time. Waiting for a slot is bounded by timeout (the
// configured QueryTimeout when zero). Failures are logged per relay and
// never reach the caller. It returns once every relay has been tried.
func (m *Manager) QueryRelays(ctx context.Context, subID string, msgType types.MessageType, filters []types.Filter, timeout time.Duration) {
	if timeout <= 0 {
		timeout = m.opts.QueryTimeout
	}

	m.fanOut(ctx, timeout, func(uri string) error {
		if err := m.OpenConnection(ctx, uri); err != nil {
			return err
		}
		c, ok := m.conns.Load(uri)
		if !ok {
			return fmt.Errorf("relay %s removed", uri)
		}
		return c.Subscribe(ctx, msgType, subID, filters)
	}, "sub", subID)
}

// SendEvent publishes ["EVENT", evt] to every relay. Waiting for a slot
// has no timeout beyond ctx.
func (m *Manager) SendEvent(ctx context.Context, evt *types.Event, subscriptionHash string) {
	frame, err := nostr.EncodeEvent(evt)
	if err != nil {
		slog.Error("event encode failed", "event_id", nostr.ShortID(evt.ID), "error", err)
		return
	}

	m.fanOut(ctx, 0, func(uri string) error {
		if err := m.OpenConnection(ctx, uri); err != nil {
			return err
		}
		c, ok := m.conns.Load(uri)
		if !ok {
			return fmt.Errorf("relay %s removed", uri)
		}
		if err := c.SendEvent(ctx, frame, subscriptionHash); err != nil {
			return err
		}
		m.stats.eventsSent.Add(1)
		return nil
	}, "event_id", nostr.ShortID(evt.ID))
}

// fanOut runs fn for every relay under a fresh MaxInFlight semaphore.
// acquireTimeout of zero waits for a slot until ctx ends.
func (m *Manager) fanOut(ctx context.Context, acquireTimeout time.Duration, fn func(uri string) error, logAttrs ...any) {
	sem := semaphore.NewWeighted(m.opts.MaxInFlight)

	var wg sync.WaitGroup
	for _, uri := range m.Relays() {
		wg.Add(1)
		go func(uri string) {
			defer wg.Done()

			acquireCtx, cancel := ctx, context.CancelFunc(func() {})
			if acquireTimeout > 0 {
				acquireCtx, cancel = context.WithTimeout(ctx, acquireTimeout)
			}
			err := sem.Acquire(acquireCtx, 1)
			cancel()
			if err != nil {
				slog.Warn("relay slot not acquired", append([]any{"relay", uri, "error", err}, logAttrs...)...)
				return
			}
			defer sem.Release(1)

			if err := fn(uri); err != nil {
				slog.Warn("relay operation failed", append([]any{"relay", uri, "error", err}, logAttrs...)...)
			}
		}(uri)
	}
	wg.Wait()
}
