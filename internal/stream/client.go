package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"droneops-gcs/internal/telemetry"
)

var (
	// ErrConnect wraps the cause of a failed connection attempt.
	ErrConnect = errors.New("telemetry stream connect failed")
	// ErrClosed is returned by Connect after the client has been closed.
	ErrClosed = errors.New("telemetry stream client closed")
)

// Source is the subscriber-facing contract shared by live and local clients.
type Source interface {
	Connect(ctx context.Context, address string) error
	Disconnect()
	Subscribe(fn func(telemetry.Sample)) (unsubscribe func())
	SubscribeToStatus(fn func(connected bool)) (unsubscribe func())
	State() State
	Close() error
}

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosedPendingRetry
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedPendingRetry:
		return "closed_pending_retry"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats is a point-in-time view of client counters.
type Stats struct {
	State      State
	Address    string
	Attempts   int
	LastDelay  time.Duration
	Received   uint64
	Malformed  uint64
	Reconnects uint64
}

// attempt lets Connect wait for the outcome of the dial it started.
type attempt struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newAttempt() *attempt { return &attempt{done: make(chan struct{})} }

func (a *attempt) finish(err error) {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// Client maintains a long-lived telemetry stream and reconnects with
// exponential backoff after unplanned closes.
type Client struct {
	transport Transport
	policy    Policy
	clock     Clock
	log       *slog.Logger
	reg       *registry

	mu        sync.Mutex
	state     State
	address   string
	gen       uint64
	attempts  int
	lastDelay time.Duration
	timer     Timer
	cancel    context.CancelFunc
	pending   *attempt
	closed    bool
	stats     Stats
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithPolicy sets the reconnection policy. Zero fields keep their defaults.
func WithPolicy(p Policy) ClientOption {
	return func(c *Client) { c.policy = p.withDefaults() }
}

// WithTransport replaces the default scheme-selecting transport.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) { c.transport = t }
}

// WithClock replaces the retry timer source.
func WithClock(clk Clock) ClientOption {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient creates an idle client. Call Close to release the dispatcher.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		policy: DefaultPolicy(),
		clock:  realClock{},
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.transport == nil {
		c.transport = NewAutoTransport()
	}
	c.log = c.log.With("component", "stream_client")
	c.reg = newRegistry(c.log)
	return c
}

// Subscribe registers a sample consumer.
func (c *Client) Subscribe(fn func(telemetry.Sample)) func() {
	return c.reg.subscribe(fn)
}

// SubscribeToStatus registers a consumer of connectivity transitions.
func (c *Client) SubscribeToStatus(fn func(bool)) func() {
	return c.reg.subscribeStatus(fn)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.State = c.state
	st.Address = c.address
	st.Attempts = c.attempts
	st.LastDelay = c.lastDelay
	return st
}

// Connect establishes the stream and waits for the first open or failure.
// While connecting or open it only replaces the address used by later
// reconnects. From Idle, pending retry or Exhausted it starts a fresh attempt
// with a full retry budget. A failed first attempt still schedules retries.
func (c *Client) Connect(ctx context.Context, address string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if address != "" {
		c.address = address
	}
	if c.address == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: no address", ErrConnect)
	}
	switch c.state {
	case StateOpen:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		att := c.pending
		c.mu.Unlock()
		return wait(ctx, att)
	}

	c.stopTimer()
	c.attempts = 0
	c.lastDelay = 0
	c.gen = c.reg.advance()
	att := newAttempt()
	c.pending = att
	c.dial(c.gen, att)
	c.mu.Unlock()

	return wait(ctx, att)
}

func wait(ctx context.Context, att *attempt) error {
	if att == nil {
		return nil
	}
	select {
	case <-att.done:
		return att.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dial starts one connection attempt for generation gen. Caller holds c.mu.
func (c *Client) dial(gen uint64, att *attempt) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateConnecting
	addr := c.address
	c.log.Info("connecting", "address", addr, "attempt", c.attempts)
	go c.run(ctx, gen, addr, att)
}

func (c *Client) run(ctx context.Context, gen uint64, addr string, att *attempt) {
	conn, err := c.transport.Dial(ctx, addr)
	if err != nil {
		c.handleClose(gen, att, err)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		conn.Close()
		att.finish(ErrClosed)
		return
	}
	c.state = StateOpen
	c.attempts = 0
	c.lastDelay = 0
	if c.pending == att {
		c.pending = nil
	}
	c.mu.Unlock()

	c.log.Info("telemetry stream open", "address", addr)
	c.reg.publishStatus(gen, true)
	att.finish(nil)

	for {
		payload, err := conn.Recv()
		if err != nil {
			conn.Close()
			c.handleClose(gen, nil, err)
			return
		}
		sample, err := telemetry.Decode(payload)
		if err != nil {
			c.mu.Lock()
			c.stats.Malformed++
			c.mu.Unlock()
			c.log.Warn("dropping malformed sample", "err", err)
			continue
		}
		c.mu.Lock()
		stale := c.gen != gen
		if !stale {
			c.stats.Received++
		}
		c.mu.Unlock()
		if stale {
			conn.Close()
			return
		}
		c.reg.publishSample(gen, sample)
	}
}

// handleClose reacts to a failed dial or a dropped stream.
func (c *Client) handleClose(gen uint64, att *attempt, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		att.finish(fmt.Errorf("%w: %v", ErrConnect, cause))
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.pending == att {
		c.pending = nil
	}

	if c.attempts >= c.policy.MaxAttempts {
		c.state = StateExhausted
		c.mu.Unlock()
		c.log.Error("max reconnection attempts reached", "attempts", c.policy.MaxAttempts, "err", cause)
		c.reg.publishStatus(gen, false)
		att.finish(fmt.Errorf("%w: %v", ErrConnect, cause))
		return
	}

	c.attempts++
	delay := c.policy.Delay(c.attempts)
	c.lastDelay = delay
	c.state = StateClosedPendingRetry
	c.timer = c.clock.AfterFunc(delay, func() { c.retry(gen) })
	attemptNo := c.attempts
	c.mu.Unlock()

	c.log.Warn("telemetry stream closed, reconnecting",
		"err", cause, "delay", delay, "attempt", attemptNo, "max_attempts", c.policy.MaxAttempts)
	c.reg.publishStatus(gen, false)
	att.finish(fmt.Errorf("%w: %v", ErrConnect, cause))
}

func (c *Client) retry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed || c.state != StateClosedPendingRetry {
		return
	}
	c.timer = nil
	c.stats.Reconnects++
	att := newAttempt()
	c.pending = att
	c.dial(gen, att)
}

// stopTimer cancels a pending retry. Caller holds c.mu.
func (c *Client) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Disconnect closes the stream, cancels any pending retry and reports the
// disconnection once, including from pending retry or Exhausted. No sample
// from the old connection is delivered after it returns. From Idle it
// reports nothing new.
func (c *Client) Disconnect() {
	c.mu.Lock()
	active := c.state != StateIdle
	c.stopTimer()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen = c.reg.advance()
	gen := c.gen
	c.state = StateIdle
	c.attempts = 0
	c.lastDelay = 0
	c.pending = nil
	c.mu.Unlock()

	c.log.Info("telemetry stream disconnected")
	if active {
		c.reg.publishDisconnect(gen)
	} else {
		c.reg.publishStatus(gen, false)
	}
}

// Close disconnects and stops the dispatcher. The client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Disconnect()
	c.reg.close()
	return nil
}
