// Package events is the client end of the event channel: it dials the
// server's WebSocket endpoint and yields decoded protocol events.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
)

const readLimit = 1 << 20

// Conn is one open event channel.
type Conn interface {
	// Read blocks for the next event. Connection failures wrap
	// common.ErrTransport; a message that cannot be decoded yields
	// common.ErrMalformedEvent or common.ErrUnknownEventType and leaves the
	// connection usable.
	Read(ctx context.Context) (protocol.Event, error)
	Ping(ctx context.Context) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer dials a fixed URL with a bounded handshake.
type WSDialer struct {
	url     string
	timeout time.Duration
}

func NewDialer(url string, connectTimeout time.Duration) *WSDialer {
	return &WSDialer{url: url, timeout: connectTimeout}
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	c, _, err := websocket.Dial(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", common.ErrTransport, d.url, err)
	}
	c.SetReadLimit(readLimit)
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) (protocol.Event, error) {
	typ, data, err := w.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", common.ErrTransport, err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("%w: binary frame", common.ErrMalformedEvent)
	}
	return protocol.Decode(data)
}

func (w *wsConn) Ping(ctx context.Context) error {
	if err := w.conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", common.ErrTransport, err)
	}
	return nil
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "")
}

// Recoverable reports whether err from Conn.Read concerns one message only.
func Recoverable(err error) bool {
	return errors.Is(err, common.ErrMalformedEvent) || errors.Is(err, common.ErrUnknownEventType)
}
