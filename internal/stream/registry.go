package stream

import (
	"log/slog"
	"sync"

	"droneops-gcs/internal/telemetry"
)

// event is one queued dispatch. Samples and "open" statuses are tied to the
// session generation that produced them; "closed" statuses are always
// delivered so that every open is bracketed by a close. A forced status skips
// the repeat filter.
type event struct {
	gen    uint64
	sample telemetry.Sample
	status bool
	isData bool
	force  bool
}

type sampleSub struct {
	id uint64
	fn func(telemetry.Sample)
}

type statusSub struct {
	id uint64
	fn func(bool)
}

// registry owns the subscriber sets of one source and runs every callback on
// its dispatcher goroutine.
type registry struct {
	log *slog.Logger

	mu         sync.Mutex
	nextID     uint64
	samples    map[uint64]func(telemetry.Sample)
	statuses   map[uint64]func(bool)
	gen        uint64
	queue      []event
	lastStatus *bool
	closed     bool

	wake chan struct{}
	done chan struct{}
}

func newRegistry(log *slog.Logger) *registry {
	r := &registry{
		log:      log,
		samples:  make(map[uint64]func(telemetry.Sample)),
		statuses: make(map[uint64]func(bool)),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *registry) subscribe(fn func(telemetry.Sample)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.samples[id] = fn
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.samples, id)
			r.mu.Unlock()
		})
	}
}

func (r *registry) subscribeStatus(fn func(bool)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.statuses[id] = fn
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.statuses, id)
			r.mu.Unlock()
		})
	}
}

// advance starts a new session generation. Queued samples and open statuses
// from older generations are dropped.
func (r *registry) advance() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	return r.gen
}

func (r *registry) publishSample(gen uint64, s telemetry.Sample) {
	r.enqueue(event{gen: gen, sample: s, isData: true})
}

func (r *registry) publishStatus(gen uint64, connected bool) {
	r.enqueue(event{gen: gen, status: connected})
}

// publishDisconnect reports a deliberate disconnect even when the last
// notification was already "closed".
func (r *registry) publishDisconnect(gen uint64) {
	r.enqueue(event{gen: gen, status: false, force: true})
}

func (r *registry) enqueue(ev event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, ev)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// close stops the dispatcher after it drains what is already queued.
func (r *registry) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	close(r.done)
}

func (r *registry) loop() {
	for {
		select {
		case <-r.wake:
			r.drain()
		case <-r.done:
			r.drain()
			return
		}
	}
}

func (r *registry) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.queue = nil
			r.mu.Unlock()
			return
		}
		ev := r.queue[0]
		r.queue = r.queue[1:]
		if ev.isData {
			subs := r.sampleSnapshot()
			r.mu.Unlock()
			for _, s := range subs {
				r.deliverSample(ev, s)
			}
			continue
		}
		if !r.acceptStatus(ev) {
			r.mu.Unlock()
			continue
		}
		subs := r.statusSnapshot()
		r.mu.Unlock()
		for _, s := range subs {
			r.deliverStatus(ev, s)
		}
	}
}

// acceptStatus drops stale opens and repeated values. Caller holds r.mu.
func (r *registry) acceptStatus(ev event) bool {
	if ev.status && ev.gen != r.gen {
		return false
	}
	if !ev.force && r.lastStatus != nil && *r.lastStatus == ev.status {
		return false
	}
	v := ev.status
	r.lastStatus = &v
	return true
}

func (r *registry) sampleSnapshot() []sampleSub {
	subs := make([]sampleSub, 0, len(r.samples))
	for id, fn := range r.samples {
		subs = append(subs, sampleSub{id: id, fn: fn})
	}
	return subs
}

func (r *registry) statusSnapshot() []statusSub {
	subs := make([]statusSub, 0, len(r.statuses))
	for id, fn := range r.statuses {
		subs = append(subs, statusSub{id: id, fn: fn})
	}
	return subs
}

// deliverSample re-checks registration and generation right before the call
// so that unsubscribe and disconnect take effect mid-dispatch.
func (r *registry) deliverSample(ev event, s sampleSub) {
	r.mu.Lock()
	_, ok := r.samples[s.id]
	current := ev.gen == r.gen
	r.mu.Unlock()
	if !ok || !current {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("telemetry subscriber panicked", "subscriber", s.id, "panic", p)
		}
	}()
	s.fn(ev.sample.Clone())
}

func (r *registry) deliverStatus(ev event, s statusSub) {
	r.mu.Lock()
	_, ok := r.statuses[s.id]
	r.mu.Unlock()
	if !ok {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("status subscriber panicked", "subscriber", s.id, "panic", p)
		}
	}()
	s.fn(ev.status)
}
