package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

const defaultTaskTimeout = 30 * time.Second

var (
	// ErrTaskDispatcherClosed is delivered for tasks dispatched after Shutdown began.
	ErrTaskDispatcherClosed = errors.New("tasks: dispatcher closed")
	// ErrTaskPanicked wraps a recovered panic.
	ErrTaskPanicked = errors.New("tasks: task panicked")
)

// Task is a unit of best-effort work.
type Task func(ctx context.Context) error

// TaskDispatcherDeps configures a TaskDispatcher.
type TaskDispatcherDeps struct {
	Timeout time.Duration
	Clock   func() time.Time
	Logger  Logger
}

// TaskDispatcher runs side effects that must not block or fail the request that triggered them.
// Each task gets a context that keeps the request values but not its cancellation.
type TaskDispatcher struct {
	timeout time.Duration
	clock   func() time.Time
	logger  Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewTaskDispatcher constructs a dispatcher.
func NewTaskDispatcher(deps TaskDispatcherDeps) *TaskDispatcher {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &TaskDispatcher{
		timeout: timeout,
		clock:   clock,
		logger:  logger,
	}
}

// Dispatch starts fn in the background. The returned channel receives the task result exactly once and
// is buffered, so callers that do not wait never leak the goroutine.
func (d *TaskDispatcher) Dispatch(ctx context.Context, name string, fn Task) <-chan error {
	done := make(chan error, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger(ctx, "task.rejected", map[string]any{"task": name})
		done <- ErrTaskDispatcherClosed
		return done
	}
	d.wg.Add(1)
	d.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	go func() {
		defer d.wg.Done()
		defer cancel()

		started := d.clock()
		err := d.run(taskCtx, fn)
		fields := map[string]any{
			"task":       name,
			"durationMs": d.clock().Sub(started).Milliseconds(),
		}
		if err != nil {
			fields["error"] = err.Error()
			d.logger(taskCtx, "task.failed", fields)
		} else {
			d.logger(taskCtx, "task.completed", fields)
		}
		done <- err
	}()
	return done
}

func (d *TaskDispatcher) run(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrTaskPanicked, r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Shutdown stops accepting tasks and waits for in-flight ones until ctx is done.
func (d *TaskDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Await waits up to wait for a dispatched task. done is false when the wait elapsed first; the task
// keeps running in that case.
func Await(ctx context.Context, result <-chan error, wait time.Duration) (done bool, err error) {
	if wait <= 0 {
		select {
		case err := <-result:
			return true, err
		default:
			return false, nil
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case err := <-result:
		return true, err
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
