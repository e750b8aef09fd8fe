package audit

import (
	"context"
	"time"
)

// recordTimeout bounds a single audit write.
const recordTimeout = 5 * time.Second

// Logger is the logging interface used by the recorder.
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

// Recorder writes audit logs on a best-effort basis: a failed write is
// logged and never fails the audited operation. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, logger: logger}
}

// Record stores log. The write is detached from ctx's cancellation so a
// client hanging up does not lose the entry.
func (r *Recorder) Record(ctx context.Context, log Log) {
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, &log); err != nil {
		r.logger.Warn("audit write failed",
			"action", log.Action,
			"target", log.Target,
			"error", err,
		)
	}
}

// List returns a page of logs.
func (r *Recorder) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return r.repo.List(ctx, filter)
}
