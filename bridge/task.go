package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/david-cermak/iot-conformance/internal/pool"
	"github.com/david-cermak/iot-conformance/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// TaskFunc performs one iteration of a task loop. It should return true to keep running,
// or false to stop the goroutine. ctx is done once the TaskManager is stopped.
type TaskFunc func(ctx context.Context) bool

// TaskExitFunc is called when a task goroutine exits, whether it was stopped or returned false.
type TaskExitFunc func()

// TaskManager manages the lifecycle of the bridge goroutines.
//
// Every task runs its TaskFunc in a loop and checks the manager context between
// iterations, so a stop is observed at the next iteration boundary. The manager keeps one
// done channel per task which allows waiting for a single task with a bounded timeout.
//
// Example Usage:
//
//	taskMgr := bridge.NewTaskManager(ctx, logger)
//
//	_ = taskMgr.Start("serial-to-net", func(ctx context.Context) bool {
//	    // ... one forwarding step ...
//	    return true
//	}, nil)
//
//	taskMgr.Stop()
//	_ = taskMgr.WaitTask("serial-to-net", time.Second)
type TaskManager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	tasks  *xsync.MapOf[string, chan struct{}]
}

// NewTaskManager creates a new TaskManager with the given context as the parent context and logger.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	mgr := &TaskManager{
		logger: l,
		tasks:  xsync.NewMapOf[string, chan struct{}](),
	}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Start starts a new goroutine with the given name and task function.
//
// exitFunc, if not nil, is called when the goroutine exits.
func (mgr *TaskManager) Start(name string, taskFunc TaskFunc, exitFunc TaskExitFunc) error {
	mgr.logger.Debug("start task", "name", name)

	select {
	case <-mgr.ctx.Done():
		return fmt.Errorf("task manager already stopped, can't start %s", name)
	default:
	}

	done := make(chan struct{})
	if _, loaded := mgr.tasks.LoadOrStore(name, done); loaded {
		return fmt.Errorf("%w: %s", ErrTaskExists, name)
	}

	started := make(chan struct{})
	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer close(done)
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()
		if exitFunc != nil {
			defer exitFunc()
		}

		close(started)
		mgr.runTaskLoop(name, taskFunc)
	}()

	select {
	case <-started:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for %s to start", name)
	}
}

// Stop signals all running goroutines to exit at their next iteration boundary.
func (mgr *TaskManager) Stop() {
	mgr.cancel()
}

// WaitTask waits up to timeout for the named task to exit.
func (mgr *TaskManager) WaitTask(name string, timeout time.Duration) error {
	done, ok := mgr.tasks.Load(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s after %v", ErrStopTimeout, name, timeout)
	}
}

// Done returns a channel closed when the named task exits, or nil if it is unknown.
func (mgr *TaskManager) Done(name string) <-chan struct{} {
	done, ok := mgr.tasks.Load(name)
	if !ok {
		return nil
	}

	return done
}

// Wait waits for all goroutines to terminate.
func (mgr *TaskManager) Wait() {
	mgr.wg.Wait()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}

// runTaskLoop runs a task function in a loop with context cancellation
func (mgr *TaskManager) runTaskLoop(name string, taskFunc TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task loop", "name", name, "panic", r)
		}
	}()

	for {
		select {
		case <-mgr.ctx.Done():
			return
		default:
			if !taskFunc(mgr.ctx) {
				return
			}
		}
	}
}
