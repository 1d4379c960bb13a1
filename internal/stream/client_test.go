package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"droneops-gcs/internal/telemetry"
)

var errRefused = errors.New("connection refused")

type dialResult struct {
	conn *fakeConn
	err  error
}

// fakeTransport hands out scripted dial results; once exhausted every dial
// is refused.
type fakeTransport struct {
	mu      sync.Mutex
	results []dialResult
	dials   int
	addrs   []string
	gate    chan struct{}
}

func (f *fakeTransport) Dial(ctx context.Context, addr string) (Conn, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.dials++
	f.addrs = append(f.addrs, addr)
	r := dialResult{err: errRefused}
	if len(f.results) > 0 {
		r = f.results[0]
		f.results = f.results[1:]
	}
	f.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.conn.ctx = ctx
	return r.conn, nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

type fakeConn struct {
	ctx    context.Context
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Recv() ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, io.EOF
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeTimer struct {
	clk     *fakeClock
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeClock records retry timers; tests fire them by index.
type fakeClock struct {
	mu        sync.Mutex
	timers    []*fakeTimer
	scheduled chan time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{scheduled: make(chan time.Duration, 64)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	t := &fakeTimer{clk: c, d: d, f: f}
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	c.scheduled <- d
	return t
}

func (c *fakeClock) fire(i int) {
	c.mu.Lock()
	t := c.timers[i]
	c.mu.Unlock()
	t.f()
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) stopped(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i].stopped
}

func waitDelay(t *testing.T, clk *fakeClock) time.Duration {
	t.Helper()
	select {
	case d := <-clk.scheduled:
		return d
	case <-time.After(2 * time.Second):
		t.Fatalf("no retry scheduled")
		return 0
	}
}

type recorder struct {
	samples  chan telemetry.Sample
	statuses chan bool
}

func newRecorder(src Source) *recorder {
	r := &recorder{samples: make(chan telemetry.Sample, 64), statuses: make(chan bool, 64)}
	src.Subscribe(func(s telemetry.Sample) { r.samples <- s })
	src.SubscribeToStatus(func(ok bool) { r.statuses <- ok })
	return r
}

func (r *recorder) nextSample(t *testing.T) telemetry.Sample {
	t.Helper()
	select {
	case s := <-r.samples:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("no sample delivered")
		return telemetry.Sample{}
	}
}

func (r *recorder) nextStatus(t *testing.T) bool {
	t.Helper()
	select {
	case s := <-r.statuses:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("no status delivered")
		return false
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func payload(t *testing.T, n uint64) []byte {
	t.Helper()
	b, err := telemetry.NewGenerator().Generate(n, true).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func newTestClient(tr Transport, clk Clock) *Client {
	return NewClient(WithTransport(tr), WithClock(clk))
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	cases := map[int]time.Duration{
		1:  1000 * time.Millisecond,
		2:  1500 * time.Millisecond,
		3:  2250 * time.Millisecond,
		9:  30000 * time.Millisecond,
		50: 30000 * time.Millisecond,
	}
	for attempt, want := range cases {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d)=%v, want %v", attempt, got, want)
		}
	}
}

func TestConnectReceivesSamples(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{results: []dialResult{{conn: conn}}}
	c := newTestClient(tr, newFakeClock())
	defer c.Close()
	rec := newRecorder(c)

	if err := c.Connect(context.Background(), "ws://example/ws"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.State() != StateOpen {
		t.Fatalf("expected open, got %s", c.State())
	}
	if !rec.nextStatus(t) {
		t.Fatalf("expected connected status")
	}
	conn.msgs <- payload(t, 1)
	conn.msgs <- payload(t, 2)
	if s := rec.nextSample(t); s.Battery == nil || s.Battery.RemainingPercent >= 100 {
		t.Fatalf("unexpected first sample: %+v", s.Battery)
	}
	rec.nextSample(t)
	if st := c.Stats(); st.Received != 2 {
		t.Fatalf("expected 2 received, got %d", st.Received)
	}
}

func TestConnectIdempotent(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{results: []dialResult{{conn: conn}}, gate: make(chan struct{})}
	c := newTestClient(tr, newFakeClock())
	defer c.Close()

	errs := make(chan error, 2)
	go func() { errs <- c.Connect(context.Background(), "ws://a/ws") }()
	eventually(t, func() bool { return c.State() == StateConnecting }, "connecting")
	go func() { errs <- c.Connect(context.Background(), "ws://b/ws") }()
	time.Sleep(20 * time.Millisecond)
	close(tr.gate)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
	}
	if tr.dialCount() != 1 {
		t.Fatalf("expected a single dial, got %d", tr.dialCount())
	}
	if err := c.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect while open: %v", err)
	}
	if tr.dialCount() != 1 {
		t.Fatalf("expected no extra dial while open, got %d", tr.dialCount())
	}
	if got := c.Stats().Address; got != "ws://b/ws" {
		t.Fatalf("expected address to be replaced, got %s", got)
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	conn := newFakeConn()
	c := newTestClient(&fakeTransport{results: []dialResult{{conn: conn}}}, newFakeClock())
	defer c.Close()
	rec := newRecorder(c)
	if err := c.Connect(context.Background(), "ws://x"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn.msgs <- []byte("{not json")
	conn.msgs <- []byte(`{"timestamp":"17/10/2026 04:10","connected":true}`)
	conn.msgs <- payload(t, 5)
	rec.nextSample(t)
	if st := c.Stats(); st.Malformed != 2 || st.State != StateOpen {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestBackendPayloadDelivered(t *testing.T) {
	conn := newFakeConn()
	c := newTestClient(&fakeTransport{results: []dialResult{{conn: conn}}}, newFakeClock())
	defer c.Close()
	rec := newRecorder(c)
	if err := c.Connect(context.Background(), "ws://localhost:8000/ws"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn.msgs <- []byte(`{"timestamp": "2026-10-17T04:10:00.123456", "connected": true, ` +
		`"position": {"lat": 47.39, "lon": 8.54, "relative_alt_m": 10.0, "absolute_alt_m": 498.0}, ` +
		`"attitude": {"roll_deg": 0.1, "pitch_deg": 0.2, "yaw_deg": -90.0}, ` +
		`"battery": {"voltage_v": 10.5, "remaining_percent": 8.0}, "flight_mode": "LAND"}`)
	s := rec.nextSample(t)
	if s.Attitude.Yaw != 270 || s.Battery.RemainingPercent != 8 || s.FlightMode != "LAND" {
		t.Fatalf("unexpected sample: %+v %+v", s.Attitude, s.Battery)
	}
	if st := c.Stats(); st.Malformed != 0 || st.Received != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestLateSubscriberAfterConnect(t *testing.T) {
	conn := newFakeConn()
	c := newTestClient(&fakeTransport{results: []dialResult{{conn: conn}}}, newFakeClock())
	defer c.Close()
	if err := c.Connect(context.Background(), "ws://x"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	rec := newRecorder(c)

	if c.State() != StateOpen {
		t.Fatalf("expected open, got %s", c.State())
	}
	conn.msgs <- payload(t, 1)
	rec.nextSample(t)

	c.Disconnect()
	if rec.nextStatus(t) {
		t.Fatalf("expected late subscriber to see the disconnect")
	}
}

func TestDisconnectFromPendingRetryNotifies(t *testing.T) {
	clk := newFakeClock()
	c := newTestClient(&fakeTransport{}, clk)
	defer c.Close()
	rec := newRecorder(c)

	c.Connect(context.Background(), "ws://down")
	waitDelay(t, clk)
	if rec.nextStatus(t) {
		t.Fatalf("expected failure status")
	}
	c.Disconnect()
	if rec.nextStatus(t) {
		t.Fatalf("expected disconnected status")
	}
	c.Disconnect()
	time.Sleep(20 * time.Millisecond)
	if n := len(rec.statuses); n != 0 {
		t.Fatalf("expected no status from idle disconnect, got %d", n)
	}
}

func TestSubscriberIsolation(t *testing.T) {
	conn := newFakeConn()
	c := newTestClient(&fakeTransport{results: []dialResult{{conn: conn}}}, newFakeClock())
	defer c.Close()

	c.Subscribe(func(telemetry.Sample) { panic("boom") })
	got := make(chan telemetry.Sample, 8)
	c.Subscribe(func(s telemetry.Sample) { got <- s })

	if err := c.Connect(context.Background(), "ws://x"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for n := uint64(1); n <= 5; n++ {
		conn.msgs <- payload(t, n)
	}
	for i := 0; i < 5; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatalf("second subscriber missed sample %d", i)
		}
	}
}

func TestSubscribersCannotAliasSamples(t *testing.T) {
	conn := newFakeConn()
	c := newTestClient(&fakeTransport{results: []dialResult{{conn: conn}}}, newFakeClock())
	defer c.Close()

	c.Subscribe(func(s telemetry.Sample) { s.Position.Lat = 0 })
	got := make(chan telemetry.Sample, 1)
	c.Subscribe(func(s telemetry.Sample) { got <- s })
	if err := c.Connect(context.Background(), "ws://x"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn.msgs <- payload(t, 1)
	select {
	case s := <-got:
		if s.Position.Lat == 0 {
			t.Fatalf("sample mutated by another subscriber")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no sample")
	}
}

func TestUnsubscribeFromCallback(t *testing.T) {
	conn := newFakeConn()
	c := newTestClient(&fakeTransport{results: []dialResult{{conn: conn}}}, newFakeClock())
	defer c.Close()

	var mu sync.Mutex
	calls := 0
	var unsub func()
	unsub = c.Subscribe(func(telemetry.Sample) {
		mu.Lock()
		calls++
		mu.Unlock()
		unsub()
	})
	rec := newRecorder(c)
	if err := c.Connect(context.Background(), "ws://x"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn.msgs <- payload(t, 1)
	conn.msgs <- payload(t, 2)
	rec.nextSample(t)
	rec.nextSample(t)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one call before unsubscribe, got %d", calls)
	}
}

func TestBackoffDelays(t *testing.T) {
	clk := newFakeClock()
	tr := &fakeTransport{}
	c := newTestClient(tr, clk)
	defer c.Close()

	err := c.Connect(context.Background(), "ws://down")
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	want := []time.Duration{1000 * time.Millisecond, 1500 * time.Millisecond, 2250 * time.Millisecond}
	for i, w := range want {
		if i > 0 {
			clk.fire(i - 1)
		}
		if d := waitDelay(t, clk); d != w {
			t.Fatalf("retry %d: delay %v, want %v", i+1, d, w)
		}
	}
	if c.State() != StateClosedPendingRetry {
		t.Fatalf("expected pending retry, got %s", c.State())
	}
}

func TestAttemptsResetAfterOpen(t *testing.T) {
	clk := newFakeClock()
	conn := newFakeConn()
	tr := &fakeTransport{results: []dialResult{{err: errRefused}, {err: errRefused}, {conn: conn}}}
	c := newTestClient(tr, clk)
	defer c.Close()
	rec := newRecorder(c)

	c.Connect(context.Background(), "ws://flaky")
	waitDelay(t, clk)
	clk.fire(0)
	if d := waitDelay(t, clk); d != 1500*time.Millisecond {
		t.Fatalf("expected second delay 1.5s, got %v", d)
	}
	clk.fire(1)
	eventually(t, func() bool { return c.State() == StateOpen }, "open after retries")
	if a := c.Stats().Attempts; a != 0 {
		t.Fatalf("expected attempts reset, got %d", a)
	}

	conn.Close()
	if d := waitDelay(t, clk); d != 1000*time.Millisecond {
		t.Fatalf("expected backoff to restart at base delay, got %v", d)
	}

	// false (first failure), true (open), false (peer close)
	for i, want := range []bool{false, true, false} {
		if got := rec.nextStatus(t); got != want {
			t.Fatalf("status %d = %v, want %v", i, got, want)
		}
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	clk := newFakeClock()
	tr := &fakeTransport{}
	c := newTestClient(tr, clk)
	defer c.Close()
	rec := newRecorder(c)

	c.Connect(context.Background(), "ws://down")
	var delays []time.Duration
	delays = append(delays, waitDelay(t, clk))
	for i := 0; i < 9; i++ {
		clk.fire(i)
		delays = append(delays, waitDelay(t, clk))
	}
	if len(delays) != 10 {
		t.Fatalf("expected 10 retries, got %d", len(delays))
	}
	if delays[9] != 30*time.Second {
		t.Fatalf("expected delay capped at 30s, got %v", delays[9])
	}

	clk.fire(9)
	eventually(t, func() bool { return c.State() == StateExhausted }, "exhausted")
	time.Sleep(20 * time.Millisecond)
	if clk.count() != 10 {
		t.Fatalf("expected no retry after exhaustion, got %d timers", clk.count())
	}
	if rec.nextStatus(t) {
		t.Fatalf("expected disconnected status")
	}

	conn := newFakeConn()
	tr.mu.Lock()
	tr.results = []dialResult{{conn: conn}}
	tr.mu.Unlock()
	if err := c.Connect(context.Background(), ""); err != nil {
		t.Fatalf("explicit reconnect: %v", err)
	}
	if c.State() != StateOpen {
		t.Fatalf("expected open after explicit connect, got %s", c.State())
	}
}

func TestDisconnectWhenExhaustedNotifies(t *testing.T) {
	clk := newFakeClock()
	c := NewClient(WithTransport(&fakeTransport{}), WithClock(clk), WithPolicy(Policy{MaxAttempts: 1}))
	defer c.Close()
	rec := newRecorder(c)

	c.Connect(context.Background(), "ws://down")
	waitDelay(t, clk)
	clk.fire(0)
	eventually(t, func() bool { return c.State() == StateExhausted }, "exhausted")
	if rec.nextStatus(t) {
		t.Fatalf("expected failure status")
	}
	c.Disconnect()
	if rec.nextStatus(t) {
		t.Fatalf("expected disconnected status")
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
}

func TestDisconnectSuppressesEvents(t *testing.T) {
	clk := newFakeClock()
	conn := newFakeConn()
	tr := &fakeTransport{results: []dialResult{{conn: conn}}}
	c := newTestClient(tr, clk)
	defer c.Close()
	rec := newRecorder(c)

	if err := c.Connect(context.Background(), "ws://x"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec.nextStatus(t)
	conn.msgs <- payload(t, 1)
	rec.nextSample(t)

	c.Disconnect()
	if c.State() != StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
	conn.msgs <- payload(t, 2)
	if rec.nextStatus(t) {
		t.Fatalf("expected disconnected status")
	}
	c.Disconnect()
	time.Sleep(50 * time.Millisecond)
	select {
	case s := <-rec.samples:
		t.Fatalf("unexpected sample after disconnect: %+v", s)
	case st := <-rec.statuses:
		t.Fatalf("unexpected status after disconnect: %v", st)
	default:
	}
	if clk.count() != 0 {
		t.Fatalf("expected no retry after deliberate disconnect")
	}
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	clk := newFakeClock()
	tr := &fakeTransport{}
	c := newTestClient(tr, clk)
	defer c.Close()

	c.Connect(context.Background(), "ws://down")
	waitDelay(t, clk)
	c.Disconnect()
	if !clk.stopped(0) {
		t.Fatalf("expected retry timer to be stopped")
	}
	clk.fire(0)
	time.Sleep(20 * time.Millisecond)
	if tr.dialCount() != 1 {
		t.Fatalf("expected stale timer to be ignored, got %d dials", tr.dialCount())
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
}

func TestConnectAfterClose(t *testing.T) {
	c := newTestClient(&fakeTransport{}, newFakeClock())
	c.Close()
	if err := c.Connect(context.Background(), "ws://x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateClosedPendingRetry.String() != "closed_pending_retry" {
		t.Fatalf("unexpected name %s", StateClosedPendingRetry)
	}
}
