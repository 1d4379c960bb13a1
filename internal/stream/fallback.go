package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"droneops-gcs/internal/telemetry"
)

// DefaultLocalInterval is the sample period of the local fallback source.
const DefaultLocalInterval = 500 * time.Millisecond

// LocalClient generates samples on a local ticker. It satisfies Source and
// is used when no live endpoint is reachable.
type LocalClient struct {
	gen      *telemetry.Generator
	interval time.Duration
	log      *slog.Logger
	reg      *registry
	counter  telemetry.Counter

	mu      sync.Mutex
	session uint64
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewLocalClient creates a fallback source. A non-positive interval uses
// DefaultLocalInterval.
func NewLocalClient(gen *telemetry.Generator, interval time.Duration, log *slog.Logger) *LocalClient {
	if gen == nil {
		gen = telemetry.NewGenerator()
	}
	if interval <= 0 {
		interval = DefaultLocalInterval
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "local_client")
	return &LocalClient{gen: gen, interval: interval, log: log, reg: newRegistry(log)}
}

// Subscribe registers a sample consumer.
func (l *LocalClient) Subscribe(fn func(telemetry.Sample)) func() {
	return l.reg.subscribe(fn)
}

// SubscribeToStatus registers a consumer of connectivity transitions.
func (l *LocalClient) SubscribeToStatus(fn func(bool)) func() {
	return l.reg.subscribeStatus(fn)
}

// State reports StateOpen while the ticker runs and StateIdle otherwise.
func (l *LocalClient) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return StateOpen
	}
	return StateIdle
}

// Connect starts the ticker and ignores the address. It only fails with
// ErrClosed after Close. The sample counter keeps running across disconnects.
func (l *LocalClient) Connect(_ context.Context, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.session = l.reg.advance()
	session := l.session
	l.reg.publishStatus(session, true)
	l.log.Info("local telemetry started", "interval", l.interval)

	l.wg.Add(1)
	go l.run(ctx, session)
	return nil
}

func (l *LocalClient) run(ctx context.Context, session uint64) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n := l.counter.Next()
			l.reg.publishSample(session, l.gen.Generate(n, true))
		case <-ctx.Done():
			return
		}
	}
}

// Disconnect stops the ticker and reports the disconnection.
func (l *LocalClient) Disconnect() {
	l.mu.Lock()
	active := l.cancel != nil
	if active {
		l.cancel()
		l.cancel = nil
	}
	l.session = l.reg.advance()
	session := l.session
	l.mu.Unlock()

	l.log.Info("local telemetry stopped")
	if active {
		l.reg.publishDisconnect(session)
	} else {
		l.reg.publishStatus(session, false)
	}
}

// Close disconnects, waits for the ticker goroutine and stops the dispatcher.
// Later Connect calls return ErrClosed.
func (l *LocalClient) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.Disconnect()
	l.wg.Wait()
	l.reg.close()
	return nil
}
