package stream

import (
	"context"
	"fmt"
	"net/url"
)

// Transport opens a one-way connection to a telemetry push endpoint.
type Transport interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// Conn yields raw sample payloads. Recv blocks until a payload arrives, the
// peer closes, or the dial context is cancelled.
type Conn interface {
	Recv() ([]byte, error)
	Close() error
}

// AutoTransport picks WebSocket for ws:// and wss:// addresses and
// Server-Sent Events for http:// and https://.
type AutoTransport struct {
	SSE       Transport
	WebSocket Transport
}

// NewAutoTransport returns an AutoTransport with default SSE and WebSocket dialers.
func NewAutoTransport() *AutoTransport {
	return &AutoTransport{SSE: NewSSETransport(nil), WebSocket: NewWebSocketTransport(nil)}
}

// Dial implements Transport.
func (t *AutoTransport) Dial(ctx context.Context, address string) (Conn, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse stream address: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		return t.WebSocket.Dial(ctx, address)
	case "http", "https":
		return t.SSE.Dial(ctx, address)
	default:
		return nil, fmt.Errorf("unsupported stream scheme %q", u.Scheme)
	}
}
