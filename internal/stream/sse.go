package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
)

const maxEventSize = 1 << 20

// SSETransport reads text/event-stream responses. Each event's data lines
// form one payload.
type SSETransport struct {
	client *http.Client
}

// NewSSETransport creates an SSE transport. A nil client uses a client
// without a response timeout, since the stream is long-lived.
func NewSSETransport(client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{client: client}
}

// Dial implements Transport.
func (t *SSETransport) Dial(ctx context.Context, address string) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream endpoint returned %s", resp.Status)
	}
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mt != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("stream endpoint returned content type %q", resp.Header.Get("Content-Type"))
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &sseConn{body: resp.Body, scanner: sc}, nil
}

type sseConn struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Recv returns the data of the next event. Comments and the event, id and
// retry fields are skipped.
func (c *sseConn) Recv() ([]byte, error) {
	var data [][]byte
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			if len(data) == 0 {
				continue
			}
			return bytes.Join(data, []byte("\n")), nil
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		data = append(data, append([]byte(nil), value...))
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *sseConn) Close() error {
	return c.body.Close()
}
