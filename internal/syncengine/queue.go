package syncengine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// localTask is one watcher-observed change awaiting processing.
type localTask struct {
	kind ChangeType // ChangeUpdate or ChangeDelete
	path string
}

// localQueue is the engine's LocalQueue: a single goroutine consuming
// tasks from a channel, which trivially preserves per-path arrival order
// (spec.md section 4.7.2, 4.7.7) since there is exactly one consumer.
type localQueue struct {
	tasks  chan localTask
	handle func(context.Context, localTask)
	done   chan struct{}
}

func newLocalQueue(bufSize int, handle func(context.Context, localTask)) *localQueue {
	return &localQueue{
		tasks:  make(chan localTask, bufSize),
		handle: handle,
		done:   make(chan struct{}),
	}
}

func (q *localQueue) run(ctx context.Context) {
	defer close(q.done)

	for {
		select {
		case t := <-q.tasks:
			q.handle(ctx, t)
		case <-ctx.Done():
			// Drain remaining tasks before returning (stop() "drains
			// pending tasks to completion", spec.md section 5).
			for {
				select {
				case t := <-q.tasks:
					q.handle(context.Background(), t)
				default:
					return
				}
			}
		}
	}
}

// enqueue submits a task. Called by the watcher goroutine.
func (q *localQueue) enqueue(t localTask) {
	q.tasks <- t
}

// remoteQueue is the engine's RemoteQueue: a single pending
// reconcileAllRemotes task is coalesced per burst of update notifications
// (spec.md section 4.7.2). A size-1 trigger channel coalesces concurrent
// notifications into one pending wakeup, and the run loop executes each
// reconcile through singleflight.Group, one at a time. Startup's reconcile
// pass runs before the queue is started and does not go through it.
type remoteQueue struct {
	trigger chan struct{}
	group   singleflight.Group
	running atomic.Bool
	logger  *slog.Logger
	done    chan struct{}
}

func newRemoteQueue(logger *slog.Logger) *remoteQueue {
	return &remoteQueue{
		trigger: make(chan struct{}, 1),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// notify arms a pending reconcile, coalescing with any already-pending
// notification.
func (q *remoteQueue) notify() {
	select {
	case q.trigger <- struct{}{}:
	default:
	}
}

// run drives the coalesced reconcile loop until ctx is canceled, then runs
// a reconcile that was already pending, if any, before returning.
func (q *remoteQueue) run(ctx context.Context, reconcile func(context.Context) error) {
	defer close(q.done)

	for {
		select {
		case <-q.trigger:
			q.runOnce(ctx, reconcile)
		case <-ctx.Done():
			// Drain the pending reconcile, as localQueue drains its tasks.
			select {
			case <-q.trigger:
				q.runOnce(context.Background(), reconcile)
			default:
			}

			return
		}
	}
}

// runOnce executes reconcile through the singleflight group, logging any
// error as a worker-step failure rather than stopping the loop (spec.md
// section 4.7.9).
func (q *remoteQueue) runOnce(ctx context.Context, reconcile func(context.Context) error) {
	_, err, _ := q.group.Do("reconcile", func() (any, error) {
		return nil, reconcile(ctx)
	})
	if err != nil {
		q.logger.Error("remote reconcile failed", "error", err)
	}
}
