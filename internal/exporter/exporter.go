package exporter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/medication-tracker/internal/entity"
)

const (
	// DefaultQueueSize is used when New is given a non-positive size.
	DefaultQueueSize = 1024

	// drainTimeout bounds how long Run keeps exporting queued events after
	// its context is cancelled.
	drainTimeout = 5 * time.Second
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sink receives every exported state event.
type Sink interface {
	Name() string
	Export(ctx context.Context, ev entity.Event) error
}

// Exporter queues state events and fans them out to sinks on its own
// goroutine.
type Exporter struct {
	sinks   []Sink
	queue   chan entity.Event
	logger  Logger
	dropped atomic.Uint64
	done    chan struct{}
}

// New creates an exporter with a queue of size events.
func New(size int, logger Logger, sinks ...Sink) *Exporter {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Exporter{
		sinks:  sinks,
		queue:  make(chan entity.Event, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Attach subscribes the exporter to every change of sm.
func (e *Exporter) Attach(sm *entity.StateMachine) (detach func()) {
	return sm.Listen(e.Enqueue)
}

// Enqueue adds ev to the queue without blocking. When the queue is full
// the event is dropped and counted.
func (e *Exporter) Enqueue(ev entity.Event) {
	select {
	case e.queue <- ev:
	default:
		n := e.dropped.Add(1)
		e.logger.Warn("export queue full, dropping state event",
			"entity_id", ev.EntityID,
			"dropped_total", n,
		)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (e *Exporter) Dropped() uint64 {
	return e.dropped.Load()
}

// Pending returns the number of queued events.
func (e *Exporter) Pending() int {
	return len(e.queue)
}

// Run exports queued events until ctx is cancelled, then drains what is
// left for up to drainTimeout. Call it once.
func (e *Exporter) Run(ctx context.Context) {
	defer close(e.done)

	for {
		select {
		case ev := <-e.queue:
			e.export(ctx, ev)
		case <-ctx.Done():
			e.drain()
			return
		}
	}
}

// Done is closed when Run has returned.
func (e *Exporter) Done() <-chan struct{} {
	return e.done
}

func (e *Exporter) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case ev := <-e.queue:
			e.export(ctx, ev)
		default:
			return
		}
		if ctx.Err() != nil {
			e.logger.Warn("export drain timed out", "remaining", len(e.queue))
			return
		}
	}
}

func (e *Exporter) export(ctx context.Context, ev entity.Event) {
	for _, s := range e.sinks {
		if err := s.Export(ctx, ev); err != nil {
			e.logger.Warn("state export failed",
				"sink", s.Name(),
				"entity_id", ev.EntityID,
				"error", err,
			)
		}
	}
}
