package activation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/tonegate/internal/redact"
)

// Sink consumes audit events (stdout, file, webhook, redis stream).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Metrics is a point-in-time copy of the emitter counters. Drops are kept
// per decision so a saturated queue shows which outcomes went unaudited.
type Metrics struct {
	enqueued    uint64
	dropped     map[Decision]uint64
	sinkSuccess map[string]uint64
	sinkFailure map[string]uint64
}

func (m Metrics) Enqueued() uint64 { return m.enqueued }

// Dropped returns the drops across all decisions.
func (m Metrics) Dropped() uint64 {
	var n uint64
	for _, v := range m.dropped {
		n += v
	}
	return n
}

func (m Metrics) DroppedFor(d Decision) uint64 { return m.dropped[d] }
func (m Metrics) SinkSuccess(name string) uint64 { return m.sinkSuccess[name] }
func (m Metrics) SinkFailure(name string) uint64 { return m.sinkFailure[name] }

// counters is the live, mutex-guarded form of Metrics.
type counters struct {
	mu          sync.Mutex
	enqueued    uint64
	dropped     map[Decision]uint64
	sinkSuccess map[string]uint64
	sinkFailure map[string]uint64
}

func newCounters(sinks []Sink) *counters {
	c := &counters{
		dropped:     make(map[Decision]uint64),
		sinkSuccess: make(map[string]uint64, len(sinks)),
		sinkFailure: make(map[string]uint64, len(sinks)),
	}
	for _, s := range sinks {
		c.sinkSuccess[s.Name()] = 0
		c.sinkFailure[s.Name()] = 0
	}
	return c
}

func (c *counters) enqueue() {
	c.mu.Lock()
	c.enqueued++
	c.mu.Unlock()
}

// drop counts one dropped event and returns the new total across decisions.
func (c *counters) drop(d Decision) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped[d]++
	var total uint64
	for _, v := range c.dropped {
		total += v
	}
	return total
}

func (c *counters) delivered(sink string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.sinkSuccess[sink]++
	} else {
		c.sinkFailure[sink]++
	}
}

func (c *counters) snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Metrics{
		enqueued:    c.enqueued,
		dropped:     make(map[Decision]uint64, len(c.dropped)),
		sinkSuccess: make(map[string]uint64, len(c.sinkSuccess)),
		sinkFailure: make(map[string]uint64, len(c.sinkFailure)),
	}
	for k, v := range c.dropped {
		out.dropped[k] = v
	}
	for k, v := range c.sinkSuccess {
		out.sinkSuccess[k] = v
	}
	for k, v := range c.sinkFailure {
		out.sinkFailure[k] = v
	}
	return out
}

// Emitter buffers events and delivers them to sinks off the request path.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	counters        *counters
	shutdownTimeout time.Duration
	deliverTimeout  time.Duration
	logger          *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
	// DeliverTimeout bounds a single sink delivery.
	DeliverTimeout time.Duration
	Logger         *zap.Logger
}

// NewEmitter starts background workers delivering to the provided sinks.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	workerCount := cfg.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 2 * time.Second
	}
	deliverTimeout := cfg.DeliverTimeout
	if deliverTimeout <= 0 {
		deliverTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	em := &Emitter{
		queue:           make(chan *Event, queueSize),
		sinks:           sinks,
		counters:        newCounters(sinks),
		shutdownTimeout: shutdownTimeout,
		deliverTimeout:  deliverTimeout,
		logger:          logger.Named("activation"),
	}

	for i := 0; i < workerCount; i++ {
		em.wg.Add(1)
		go em.worker()
	}

	return em
}

// Emit enqueues the event without blocking. A full queue drops the event.
func (e *Emitter) Emit(ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.counters.drop(ev.Decision)
		return
	}

	select {
	case e.queue <- ev:
		e.counters.enqueue()
	default:
		// Warn on the first drop and then once per 1000.
		if total := e.counters.drop(ev.Decision); total%1000 == 1 {
			e.logger.Warn("decision queue full, dropping events",
				zap.Uint64("dropped_total", total),
				zap.String("decision", string(ev.Decision)),
				zap.String("request_id", ev.RequestID),
			)
		}
	}
}

// Close stops accepting events, drains the queue within the shutdown
// timeout and closes every sink.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	waitCtx := ctx
	if waitCtx == nil {
		waitCtx = context.Background()
	}
	var cancel context.CancelFunc
	waitCtx, cancel = context.WithTimeout(waitCtx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		e.logger.Warn("activation drain timed out", zap.Int("pending", len(e.queue)))
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			e.logger.Warn("sink close failed", zap.String("sink", redact.String(s.Name())), redact.Error(err))
		}
	}
}

// MetricsSnapshot copies current counters.
func (e *Emitter) MetricsSnapshot() Metrics {
	if e == nil {
		return Metrics{}
	}
	return e.counters.snapshot()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev *Event) {
	for _, s := range e.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), e.deliverTimeout)
		err := s.Deliver(ctx, ev)
		cancel()
		if err != nil {
			e.logger.Warn("sink delivery failed",
				zap.String("sink", redact.String(s.Name())),
				zap.String("request_id", ev.RequestID),
				redact.Error(err),
			)
			e.counters.delivered(s.Name(), false)
			continue
		}
		e.counters.delivered(s.Name(), true)
	}
}
