package relay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-threads/internal/types"
)

var textFilter = []types.Filter{{Kinds: []types.Kind{types.KindText}}}

func TestQueryRelaysSurvivesFailingRelay(t *testing.T) {
	dialer := newFakeDialer("wss://b.example.com")
	m := NewManager(dialer, Options{})
	for _, uri := range []string{"wss://a.example.com", "wss://b.example.com", "wss://c.example.com"} {
		require.True(t, m.TryAddURI(uri))
	}

	m.QueryRelays(context.Background(), "sub1", types.MessageReq, textFilter, time.Second)

	want := `["REQ","sub1",{"kinds":[1]}]`
	for _, uri := range []string{"wss://a.example.com", "wss://c.example.com"} {
		tr := dialer.transport(uri)
		require.NotNil(t, tr, uri)
		assert.Equal(t, []string{want}, tr.frames(), uri)

		c, ok := m.Connection(uri)
		require.True(t, ok)
		assert.Equal(t, StateOpen, c.State())
		assert.Equal(t, []string{"sub1"}, c.ActiveSubscriptions())
	}

	failed, ok := m.Connection("wss://b.example.com")
	require.True(t, ok)
	assert.Equal(t, StateClosed, failed.State())
	assert.EqualValues(t, 1, m.Stats().ConnectFailures)
	assert.Equal(t, 2, m.Stats().OpenConnections)
}

func TestQueryRelaysBoundsConcurrency(t *testing.T) {
	dialer := newFakeDialer()
	dialer.delay = 20 * time.Millisecond
	m := NewManager(dialer, Options{})
	for i := 0; i < 12; i++ {
		require.True(t, m.TryAddURI(fmt.Sprintf("wss://r%d.example.com", i)))
	}

	m.QueryRelays(context.Background(), "sub1", types.MessageReq, textFilter, 5*time.Second)

	assert.EqualValues(t, 12, dialer.dials.Load())
	assert.LessOrEqual(t, dialer.maxSeen.Load(), int32(DefaultMaxInFlight))
}

func TestQueryRelaysSlotTimeout(t *testing.T) {
	dialer := newFakeDialer()
	dialer.delay = 300 * time.Millisecond
	m := NewManager(dialer, Options{MaxInFlight: 1})
	for i := 0; i < 3; i++ {
		require.True(t, m.TryAddURI(fmt.Sprintf("wss://r%d.example.com", i)))
	}

	m.QueryRelays(context.Background(), "sub1", types.MessageReq, textFilter, 30*time.Millisecond)

	// one relay held the only slot for longer than the others could wait
	assert.EqualValues(t, 1, dialer.dials.Load())
}

func TestTryAddURI(t *testing.T) {
	m := NewManager(newFakeDialer(), Options{})

	assert.True(t, m.TryAddURI("wss://Relay.Example.com/"))
	assert.False(t, m.TryAddURI("wss://relay.example.com"))
	assert.False(t, m.TryAddURI("https://relay.example.com"))
	assert.False(t, m.TryAddURI("wss://10.0.0.1"))
	assert.False(t, m.TryAddURI("wss://relay.internal"))
	assert.True(t, m.TryAddURI("ws://localhost:7777"))

	assert.Equal(t, []string{"ws://localhost:7777", "wss://relay.example.com"}, m.Relays())
}

func TestTryAddURIAllowPrivate(t *testing.T) {
	m := NewManager(newFakeDialer(), Options{AllowPrivate: true})
	assert.True(t, m.TryAddURI("ws://192.168.1.10:7777"))
}

func TestOpenConnectionIsIdempotent(t *testing.T) {
	dialer := newFakeDialer()
	m := NewManager(dialer, Options{})
	ctx := context.Background()

	require.NoError(t, m.OpenConnection(ctx, "wss://a.example.com"))
	require.NoError(t, m.OpenConnection(ctx, "wss://a.example.com"))
	assert.EqualValues(t, 1, dialer.dials.Load())
}

func TestSubscribeIsIdempotent(t *testing.T) {
	dialer := newFakeDialer()
	m := NewManager(dialer, Options{})
	ctx := context.Background()
	require.NoError(t, m.OpenConnection(ctx, "wss://a.example.com"))
	c, _ := m.Connection("wss://a.example.com")

	require.NoError(t, c.Subscribe(ctx, types.MessageReq, "sub1", textFilter))
	require.NoError(t, c.Subscribe(ctx, types.MessageReq, "sub1", textFilter))
	assert.Len(t, dialer.transport("wss://a.example.com").frames(), 1)
}

func TestSubscribeRequiresOpenConnection(t *testing.T) {
	c := newConnection("wss://a.example.com", newFakeDialer(), nil, nil)
	err := c.Subscribe(context.Background(), types.MessageReq, "sub1", textFilter)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestSendEventIsNoOpWhenNotOpen(t *testing.T) {
	c := newConnection("wss://a.example.com", newFakeDialer(), nil, nil)
	assert.NoError(t, c.SendEvent(context.Background(), []byte(`["EVENT",{}]`), "h"))
}

func TestReceiveLoopDeliversParsedMessages(t *testing.T) {
	dialer := newFakeDialer()
	m := NewManager(dialer, Options{})
	require.NoError(t, m.OpenConnection(context.Background(), "wss://a.example.com"))
	tr := dialer.transport("wss://a.example.com")

	tr.push(`garbage`)
	tr.push(``)
	tr.push(`["EVENT","sub1",{"id":"e1","pubkey":"pk","created_at":1,"kind":1,"tags":[],"content":"hi","sig":""}]`)
	tr.push(`["EOSE","sub1"]`)

	first := receive(t, m)
	assert.Equal(t, "wss://a.example.com", first.RelayURI)
	assert.Equal(t, types.MessageEvent, first.Message.Type)
	assert.Equal(t, "e1", first.Message.Event.ID)

	second := receive(t, m)
	assert.Equal(t, types.MessageEose, second.Message.Type)

	assert.EqualValues(t, 4, m.Stats().FramesReceived)
	assert.EqualValues(t, 2, m.Stats().FramesDropped)
}

func TestRelayClosedSubscription(t *testing.T) {
	dialer := newFakeDialer()
	m := NewManager(dialer, Options{})
	ctx := context.Background()
	require.NoError(t, m.OpenConnection(ctx, "wss://a.example.com"))
	c, _ := m.Connection("wss://a.example.com")
	require.NoError(t, c.Subscribe(ctx, types.MessageReq, "sub1", textFilter))

	dialer.transport("wss://a.example.com").push(`["CLOSED","sub1","error: shutting down"]`)
	msg := receive(t, m)

	assert.Equal(t, types.MessageClose, msg.Message.Type)
	assert.Empty(t, c.ActiveSubscriptions())
}

func TestCloseFrameEndsReceiveLoop(t *testing.T) {
	dialer := newFakeDialer()
	m := NewManager(dialer, Options{})
	ctx := context.Background()
	require.NoError(t, m.OpenConnection(ctx, "wss://a.example.com"))
	c, _ := m.Connection("wss://a.example.com")
	require.NoError(t, c.Subscribe(ctx, types.MessageReq, "sub1", textFilter))
	tr := dialer.transport("wss://a.example.com")

	tr.push(`["EOSE","sub1"]`)
	tr.pushCloseFrame()

	assert.Equal(t, "sub1", receive(t, m).Message.SubscriptionID)
	require.Eventually(t, func() bool { return c.State() == StateClosed }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, c.ActiveSubscriptions())
	assert.True(t, tr.isClosed())
	// only the REQ went out; the peer had already closed
	assert.Len(t, tr.frames(), 1)
}

func TestCloseUnsubscribesEverything(t *testing.T) {
	dialer := newFakeDialer()
	m := NewManager(dialer, Options{})
	ctx := context.Background()
	require.NoError(t, m.OpenConnection(ctx, "wss://a.example.com"))
	c, _ := m.Connection("wss://a.example.com")
	require.NoError(t, c.Subscribe(ctx, types.MessageReq, "sub1", textFilter))
	require.NoError(t, c.Subscribe(ctx, types.MessageReq, "sub2", textFilter))

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, m.CloseConnection(closeCtx, "wss://a.example.com"))

	frames := dialer.transport("wss://a.example.com").frames()
	assert.Contains(t, frames, `["CLOSE","sub1"]`)
	assert.Contains(t, frames, `["CLOSE","sub2"]`)
	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, m.Relays())
}

func TestSendEventFansOut(t *testing.T) {
	dialer := newFakeDialer("wss://down.example.com")
	m := NewManager(dialer, Options{})
	for _, uri := range []string{"wss://a.example.com", "wss://b.example.com", "wss://down.example.com"} {
		require.True(t, m.TryAddURI(uri))
	}

	evt := &types.Event{ID: "id1", PubKey: "pk", Kind: types.KindText, Tags: []types.Tag{}, Content: "hi", Sig: "sig"}
	m.SendEvent(context.Background(), evt, "hash")

	want := `["EVENT",{"id":"id1","pubkey":"pk","created_at":0,"kind":1,"tags":[],"content":"hi","sig":"sig"}]`
	assert.Equal(t, []string{want}, dialer.transport("wss://a.example.com").frames())
	assert.Equal(t, []string{want}, dialer.transport("wss://b.example.com").frames())
	assert.EqualValues(t, 2, m.Stats().EventsSent)
}

func TestNormalizeRelayURL(t *testing.T) {
	got, err := NormalizeRelayURL("WSS://Relay.Example.com:443/path/", false)
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com:443/path", got)

	for _, bad := range []string{"", "relay.example.com", "wss://https://x.com", "http://x.com", "wss://169.254.169.254"} {
		_, err := NormalizeRelayURL(bad, false)
		assert.ErrorIs(t, err, ErrUnsafeURL, bad)
	}
}
