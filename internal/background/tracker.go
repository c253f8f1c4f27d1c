// Package background runs detached per-request work (archive writes,
// telemetry sends) that must not delay or fail the response that spawned it.
package background

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// trackerKey identifies the Tracker in a request context.
type trackerKey struct{}

// Tracker owns detached tasks spawned on behalf of requests. The HTTP
// response is never held open waiting for a task; the server drains the
// tracker on shutdown so in-flight tasks get a chance to finish.
type Tracker struct {
	logger *slog.Logger
	// taskTimeout bounds each task's lifetime so a stuck storage or queue
	// client cannot leak goroutines indefinitely.
	taskTimeout time.Duration
	wg          sync.WaitGroup
}

func NewTracker(logger *slog.Logger, taskTimeout time.Duration) *Tracker {
	if taskTimeout <= 0 {
		taskTimeout = time.Minute
	}
	return &Tracker{logger: logger, taskTimeout: taskTimeout}
}

// Go schedules fn as a detached task. The task context is decoupled from the
// request's cancellation: a client disconnect does not cancel work that has
// no client to report to. Errors and panics are logged, never propagated.
func (t *Tracker) Go(ctx context.Context, name string, fn func(context.Context) error) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.taskTimeout)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("background task panicked",
					slog.String("task", name),
					slog.Any("panic", r),
				)
			}
		}()

		if err := fn(detached); err != nil {
			t.logger.Warn("background task failed",
				slog.String("task", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until all tracked tasks finish, or until grace elapses.
// Returns true if fully drained.
func (t *Tracker) Wait(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// Middleware attaches the tracker to each request's context so inner
// middleware can schedule detached work via Go(ctx, ...).
func Middleware(t *Tracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), trackerKey{}, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves the tracker installed by Middleware. Returns nil if
// the middleware is not present.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

// Go schedules fn on the context's tracker. Scheduling without the tracker
// middleware in place is a wiring mistake; the work still runs, untracked,
// so best-effort paths stay best-effort.
func Go(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) {
	if t := FromContext(ctx); t != nil {
		t.Go(ctx, name, fn)
		return
	}

	logger.Warn("background tracker missing from context, running task untracked", slog.String("task", name))
	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("background task panicked", slog.String("task", name), slog.Any("panic", r))
			}
		}()
		if err := fn(detached); err != nil {
			logger.Warn("background task failed", slog.String("task", name), slog.String("error", err.Error()))
		}
	}()
}
