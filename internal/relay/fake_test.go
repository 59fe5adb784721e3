package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type readResult struct {
	data []byte
	err  error
}

type fakeTransport struct {
	mu        sync.Mutex
	written   []string
	reads     chan readResult
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		reads:  make(chan readResult, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case r := <-f.reads:
		return TextMessage, r.data, r.err
	case <-f.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("write on closed transport")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) push(frame string) {
	f.reads <- readResult{data: []byte(frame)}
}

func (f *fakeTransport) pushCloseFrame() {
	f.reads <- readResult{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
}

func (f *fakeTransport) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	failing    map[string]bool
	delay      time.Duration

	dials    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeDialer(failing ...string) *fakeDialer {
	d := &fakeDialer{
		transports: make(map[string]*fakeTransport),
		failing:    make(map[string]bool),
	}
	for _, uri := range failing {
		d.failing[uri] = true
	}
	return d
}

func (d *fakeDialer) Dial(ctx context.Context, uri string) (Transport, error) {
	d.dials.Add(1)
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		seen := d.maxSeen.Load()
		if n <= seen || d.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing[uri] {
		return nil, errors.New("connection refused")
	}
	t := newFakeTransport()
	d.transports[uri] = t
	return t, nil
}

func (d *fakeDialer) transport(uri string) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[uri]
}

func receive(t *testing.T, m *Manager) Received {
	t.Helper()
	select {
	case r := <-m.Inbound():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
		return Received{}
	}
}
