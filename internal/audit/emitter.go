package audit

import (
	"context"
	"sync"
	"time"

	"github.com/moegate-ai/moegate/internal/redact"
)

// Emitter buffers and delivers audit events to sinks without blocking
// the request path. A full queue drops events rather than stalling
// dispatch.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	shutdownTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	counterMu sync.Mutex
	enqueued  uint64
	dropped   uint64
}

// EmitterConfig controls queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// NewEmitter starts background workers delivering events to the sinks.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 2 * time.Second
	}

	em := &Emitter{
		queue:           make(chan *Event, queueSize),
		sinks:           sinks,
		shutdownTimeout: shutdownTimeout,
	}

	for i := 0; i < workers; i++ {
		em.wg.Add(1)
		go em.worker()
	}

	return em
}

// Emit attempts to enqueue the event without blocking.
func (e *Emitter) Emit(ctx context.Context, ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.countDrop()
		return
	}

	select {
	case e.queue <- ev:
		e.counterMu.Lock()
		e.enqueued++
		e.counterMu.Unlock()
	default:
		e.countDrop()
	}
}

// Dropped reports how many events were lost to backpressure.
func (e *Emitter) Dropped() uint64 {
	if e == nil {
		return 0
	}
	e.counterMu.Lock()
	defer e.counterMu.Unlock()
	return e.dropped
}

// Enqueued reports how many events were accepted.
func (e *Emitter) Enqueued() uint64 {
	if e == nil {
		return 0
	}
	e.counterMu.Lock()
	defer e.counterMu.Unlock()
	return e.enqueued
}

func (e *Emitter) countDrop() {
	e.counterMu.Lock()
	e.dropped++
	e.counterMu.Unlock()
}

// Close stops accepting new events and waits briefly to drain the queue.
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
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			redact.Logf("audit: sink %s close error: %v", s.Name(), err)
		}
	}
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		for _, s := range e.sinks {
			if err := s.Deliver(context.Background(), ev); err != nil {
				redact.Logf("audit: sink %s failed: %v", s.Name(), err)
			}
		}
	}
}
