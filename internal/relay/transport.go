package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Message types, as defined by RFC 6455 and gorilla/websocket.
const (
	TextMessage  = websocket.TextMessage
	CloseMessage = websocket.CloseMessage
)

// Transport is one bidirectional message stream. ReadMessage returns a
// whole logical message, however many frames it arrived in.
type Transport interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, uri string) (Transport, error)
}

// WebsocketDialer dials relays with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, uri string) (Transport, error) {
	dialer := *websocket.DefaultDialer
	if d.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = d.HandshakeTimeout
	}
	conn, _, err := dialer.DialContext(ctx, uri, d.Header)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (t *wsTransport) ReadMessage() (int, []byte, error) {
	return t.conn.ReadMessage()
}

// WriteMessage sets a write deadline to prevent indefinite blocking.
func (t *wsTransport) WriteMessage(messageType int, data []byte) error {
	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	return t.conn.WriteMessage(messageType, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// isCloseFrame reports whether err is the peer's close frame.
func isCloseFrame(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}
