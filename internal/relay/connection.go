package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"nostr-threads/internal/nostr"
	"nostr-threads/internal/types"
)

// ConnectionState is the lifecycle state of one relay connection.
type ConnectionState int32

const (
	StateNotConnected ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateNotConnected:
		return "not_connected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrNotOpen is returned when a subscription is attempted on a
// connection that is not open.
var ErrNotOpen = errors.New("relay connection not open")

// Received is one parsed inbound message and the relay it came from.
type Received struct {
	RelayURI string
	Message  *types.ProtocolMessage
}

// Connection owns the transport to a single relay.
type Connection struct {
	uri    string
	dialer Dialer
	sink   func(context.Context, Received)
	stats  *stats

	state atomic.Int32

	mu        sync.Mutex // guards transport, cancel, done
	transport Transport
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu       sync.Mutex
	subscriptions *xsync.MapOf[string, struct{}]
}

func newConnection(uri string, dialer Dialer, sink func(context.Context, Received), st *stats) *Connection {
	if st == nil {
		st = &stats{}
	}
	return &Connection{
		uri:           uri,
		dialer:        dialer,
		sink:          sink,
		stats:         st,
		subscriptions: xsync.NewMapOf[string, struct{}](),
	}
}

// URI returns the relay URL.
func (c *Connection) URI() string { return c.uri }

// State returns the current lifecycle state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsOpen reports whether the connection accepts writes.
func (c *Connection) IsOpen() bool {
	return c.State() == StateOpen
}

// ActiveSubscriptions returns the ids of live subscriptions, sorted.
func (c *Connection) ActiveSubscriptions() []string {
	var ids []string
	c.subscriptions.Range(func(id string, _ struct{}) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// Init dials the relay and starts the receive loop. ctx bounds only the
// dial; the loop runs until Close or until the relay goes away.
func (c *Connection) Init(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateNotConnected), int32(StateConnecting)) &&
		!c.state.CompareAndSwap(int32(StateClosed), int32(StateConnecting)) {
		if c.IsOpen() {
			return nil
		}
		return fmt.Errorf("relay %s is %s", c.uri, c.State())
	}

	slog.Debug("connecting to relay", "relay", c.uri)
	t, err := c.dialer.Dial(ctx, c.uri)
	if err != nil {
		c.stats.connectFailures.Add(1)
		c.state.Store(int32(StateClosed))
		return fmt.Errorf("connect %s: %w", c.uri, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.transport = t
	c.ctx = loopCtx
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.state.Store(int32(StateOpen))
	slog.Info("relay connected", "relay", c.uri)

	go c.receiveLoop(loopCtx, t, done)
	return nil
}

// Subscribe sends [TYPE, subscriptionID, filter...] unless that
// subscription is already active on this connection.
func (c *Connection) Subscribe(ctx context.Context, msgType types.MessageType, subID string, filters []types.Filter) error {
	if !c.IsOpen() {
		return ErrNotOpen
	}
	if _, active := c.subscriptions.Load(subID); active {
		return nil
	}

	frame, err := nostr.EncodeReq(msgType, subID, filters)
	if err != nil {
		return err
	}
	if err := c.write(ctx, frame); err != nil {
		return fmt.Errorf("subscribe %s: %w", subID, err)
	}

	c.subscriptions.Store(subID, struct{}{})
	return nil
}

// SendEvent writes a pre-serialised frame. It is a no-op unless the
// connection is open.
func (c *Connection) SendEvent(ctx context.Context, frame []byte, subscriptionHash string) error {
	if !c.IsOpen() {
		slog.Debug("skipping send on closed relay", "relay", c.uri, "sub", subscriptionHash)
		return nil
	}
	return c.write(ctx, frame)
}

// Unsubscribe sends ["CLOSE", id] when open and forgets the subscription.
func (c *Connection) Unsubscribe(ctx context.Context, subID string) error {
	defer c.subscriptions.Delete(subID)
	if !c.IsOpen() {
		return nil
	}
	frame, err := nostr.EncodeClose(subID)
	if err != nil {
		return err
	}
	return c.write(ctx, frame)
}

// Close unsubscribes everything, stops the receive loop and releases
// the transport.
func (c *Connection) Close(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, id := range c.ActiveSubscriptions() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := c.Unsubscribe(ctx, id); err != nil {
				slog.Debug("unsubscribe on close failed", "relay", c.uri, "sub", id, "error", err)
			}
		}(id)
	}
	wg.Wait()

	c.mu.Lock()
	t, done := c.transport, c.done
	c.mu.Unlock()

	if t == nil {
		return nil
	}
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	c.markClosed(t)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	t, connCtx := c.transport, c.ctx
	c.mu.Unlock()
	if t == nil || connCtx.Err() != nil {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	err := t.WriteMessage(TextMessage, frame)
	c.writeMu.Unlock()

	if err != nil {
		c.markClosed(t)
		return err
	}
	return nil
}

// markClosed tears down t if it is still the current transport.
func (c *Connection) markClosed(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != t || t == nil {
		return
	}

	c.state.Store(int32(StateClosed))
	c.cancel()
	t.Close()
	c.transport = nil
	c.subscriptions.Clear()
}

// receiveLoop reads whole messages until the transport fails or the peer
// sends a close frame.
func (c *Connection) receiveLoop(ctx context.Context, t Transport, done chan struct{}) {
	defer close(done)
	defer c.markClosed(t)

	var lastSubID string
	for {
		_, data, err := t.ReadMessage()
		if err != nil {
			switch {
			case isCloseFrame(err):
				slog.Info("relay closed connection", "relay", c.uri, "error", err)
				c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
				if lastSubID != "" {
					if err := c.Unsubscribe(ctx, lastSubID); err != nil {
						slog.Debug("unsubscribe after close frame failed", "relay", c.uri, "sub", lastSubID, "error", err)
					}
				}
			case ctx.Err() == nil:
				slog.Warn("relay read failed", "relay", c.uri, "error", err)
			}
			return
		}

		c.stats.framesReceived.Add(1)
		msg, err := nostr.ParseMessage(data)
		if err != nil {
			c.stats.framesDropped.Add(1)
			slog.Debug("dropping frame", "relay", c.uri, "error", err)
			continue
		}

		if msg.SubscriptionID != "" {
			lastSubID = msg.SubscriptionID
		}
		switch msg.Type {
		case types.MessageClose:
			// Subscription was closed by relay
			c.subscriptions.Delete(msg.SubscriptionID)
		case types.MessageNotice:
			slog.Info("relay notice", "relay", c.uri, "notice", msg.Notice)
		}

		if c.sink != nil {
			c.sink(ctx, Received{RelayURI: c.uri, Message: msg})
		}
	}
}
