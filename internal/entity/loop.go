package entity

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const defaultLoopBuffer = 256

// Loop runs submitted jobs one at a time on a single goroutine. Entity
// state, ledgers and estimators are only touched from inside the loop, so
// none of them need to reason about concurrent mutation.
//
// A panicking job is recovered and logged; the loop keeps running.
type Loop struct {
	jobs   chan func()
	done   chan struct{}
	logger Logger

	startOnce sync.Once
	stopOnce  sync.Once
	running   atomic.Bool
}

// NewLoop creates a loop. Call Run to start processing.
func NewLoop() *Loop {
	return &Loop{
		jobs:   make(chan func(), defaultLoopBuffer),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for recovered panics.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// Run processes jobs until ctx is cancelled. Jobs still queued at that
// point are dropped. Run may only be called once.
func (l *Loop) Run(ctx context.Context) error {
	started := false
	l.startOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("event loop already started")
	}

	l.running.Store(true)
	defer func() {
		l.running.Store(false)
		l.stopOnce.Do(func() { close(l.done) })
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-l.jobs:
			l.exec(job)
		}
	}
}

// Running reports whether Run is currently processing jobs.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop job panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	job()
}

// Submit queues fn and returns without waiting. It returns false if the
// loop has stopped.
func (l *Loop) Submit(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.jobs <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for its result. It must not be
// called from inside a loop job.
//
// ctx only bounds the wait for a slot in the queue and the moment fn would
// start: a job whose ctx is done by then is skipped and reports ctx.Err().
// Once fn has started Call waits for it, so a nil error always means fn ran
// and an error never hides a mutation that was applied.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	job := func() {
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("panic in event loop call: %v", r)
				panic(r)
			}
		}()
		result <- fn()
	}

	select {
	case l.jobs <- job:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-l.done:
		// Run may have finished the job just before returning.
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopStopped
		}
	}
}

// AfterFunc runs fn on the loop once d has elapsed. After cancel returns
// (when called from the loop) fn is guaranteed not to run, even if the
// timer had already fired and queued it.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Submit(func() {
			if cancelled.Load() {
				return
			}
			fn()
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}
