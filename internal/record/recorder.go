package record

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"droneops-gcs/internal/stream"
	"droneops-gcs/internal/telemetry"
)

// Recorder subscribes a Writer to a stream source and flushes batches on an
// interval or when a batch fills up. Write failures are logged; the samples
// of a failed batch are dropped.
type Recorder struct {
	w        Writer
	interval time.Duration
	size     int
	log      *slog.Logger

	in chan telemetry.Sample

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	mu    sync.Mutex
	unsub []func()
}

// RecorderStats counts samples by outcome.
type RecorderStats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

// NewRecorder creates a recorder. Non-positive interval and size default to
// one second and 50 samples.
func NewRecorder(w Writer, interval time.Duration, size int, log *slog.Logger) *Recorder {
	if interval <= 0 {
		interval = time.Second
	}
	if size <= 0 {
		size = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		w:        w,
		interval: interval,
		size:     size,
		log:      log.With("component", "recorder"),
		in:       make(chan telemetry.Sample, size*4),
	}
}

// Run records samples from src until ctx is cancelled, then flushes what is
// pending and unsubscribes.
func (r *Recorder) Run(ctx context.Context, src stream.Source) error {
	r.mu.Lock()
	r.unsub = append(r.unsub,
		src.Subscribe(r.enqueue),
		src.SubscribeToStatus(func(ok bool) { r.log.Info("source status", "connected", ok) }),
	)
	r.mu.Unlock()
	defer r.stop()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	batch := make([]telemetry.Sample, 0, r.size)
	for {
		select {
		case s := <-r.in:
			batch = append(batch, s)
			if len(batch) >= r.size {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-ctx.Done():
			r.stop()
			for {
				select {
				case s := <-r.in:
					batch = append(batch, s)
				default:
					r.flush(batch)
					return nil
				}
			}
		}
	}
}

// enqueue runs on the source dispatcher and never blocks it.
func (r *Recorder) enqueue(s telemetry.Sample) {
	select {
	case r.in <- s:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.log.Warn("recorder queue full, dropping samples", "dropped", r.dropped.Load())
		}
	}
}

func (r *Recorder) flush(batch []telemetry.Sample) []telemetry.Sample {
	if len(batch) == 0 {
		return batch
	}
	if err := WriteAll(r.w, batch); err != nil {
		r.failed.Add(uint64(len(batch)))
		r.log.Error("write batch failed", "rows", len(batch), "err", err)
	} else {
		r.written.Add(uint64(len(batch)))
	}
	return batch[:0]
}

func (r *Recorder) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.unsub {
		u()
	}
	r.unsub = nil
}

// Stats returns the current counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{Written: r.written.Load(), Dropped: r.dropped.Load(), Failed: r.failed.Load()}
}
