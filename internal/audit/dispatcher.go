package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config sizes the dispatch queue and picks the overflow policy. With
// DropIfFull set, a full queue sheds events and counts them; otherwise Emit
// blocks until the worker catches up or the caller's context expires.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher hands security events from request goroutines to a single
// background worker, keeping slow sinks off the admission path. A nil
// *Dispatcher is the disabled form: every method is a no-op on it.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	quit       chan struct{}
	dropIfFull bool
	dropped    atomic.Uint64
	stopping   atomic.Bool
	stopOnce   sync.Once
	worker     sync.WaitGroup
}

// NewDispatcher starts the worker goroutine. Returns nil when cfg.Enabled is
// false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, buffer),
		quit:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}
	d.worker.Add(1)
	go d.forward()
	return d
}

// forward is the worker loop. On shutdown it drains whatever is still queued
// so events emitted before Close are never lost.
func (d *Dispatcher) forward() {
	defer d.worker.Done()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues a security event. The rate-limit and lockout paths call this
// on every rejection, so it must never stall a request: with DropIfFull the
// event is shed when the queue is full, without it the ctx deadline bounds
// the wait. Events emitted after Close are discarded.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.stopping.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops the worker after it drains the queue. Safe to call more than
// once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopping.Store(true)
		close(d.quit)
		d.worker.Wait()
	})
}

// Dropped reports how many events were shed under the DropIfFull policy.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
