package stream

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketTransport reads one sample per text message.
type WebSocketTransport struct {
	dialer *websocket.Dialer
}

// NewWebSocketTransport creates a WebSocket transport. A nil dialer uses
// websocket.DefaultDialer.
func NewWebSocketTransport(dialer *websocket.Dialer) *WebSocketTransport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketTransport{dialer: dialer}
}

// Dial implements Transport.
func (t *WebSocketTransport) Dial(ctx context.Context, address string) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	c := &wsConn{conn: conn, stop: make(chan struct{})}
	// ReadMessage does not observe ctx, so closing the socket unblocks it.
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.stop:
		}
	}()
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn
	stop chan struct{}
	once sync.Once
}

func (c *wsConn) Recv() ([]byte, error) {
	for {
		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage {
			return msg, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = c.conn.Close()
	})
	return err
}
