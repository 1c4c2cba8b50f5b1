package workerpool

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs tasks on a fixed number of goroutines. Stopping the pool
// drops queued tasks and does not wait for running ones.
type WorkerPool struct {
	config    Config
	taskQueue chan Task
	group     *errgroup.Group
	ctx       context.Context
	cancel    context.CancelFunc
	stopped   atomic.Bool
	closed    atomic.Bool
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

// Task receives the pool context, which is cancelled on Stop.
type Task func(ctx context.Context)

func NewWorkerPool(ctx context.Context, config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU()
	}

	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = config.WorkerCount * 2
	}

	ctx, cancel := context.WithCancel(ctx)
	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan Task, config.GlobalBuffer),
		group:     &errgroup.Group{},
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < config.WorkerCount; i++ {
		wp.group.Go(wp.worker)
	}

	return wp
}

func (wp *WorkerPool) worker() error {
	for {
		select {
		case <-wp.ctx.Done():
			return nil
		case t, ok := <-wp.taskQueue:
			if !ok {
				return nil
			}
			if wp.stopped.Load() || wp.ctx.Err() != nil {
				return nil
			}
			t(wp.ctx)
		}
	}
}

// WorkerCount is the effective number of workers.
func (wp *WorkerPool) WorkerCount() int {
	return wp.config.WorkerCount
}

// Submit queues t, blocking while the queue is full. It returns false once
// the pool is stopped, closed or its context is done.
func (wp *WorkerPool) Submit(t Task) bool {
	if wp.stopped.Load() || wp.closed.Load() {
		return false
	}
	select {
	case <-wp.ctx.Done():
		return false
	case wp.taskQueue <- t:
		return true
	}
}

// Stop cancels the pool context. Only the first call reports true.
func (wp *WorkerPool) Stop() bool {
	if !wp.stopped.CompareAndSwap(false, true) {
		return false
	}
	wp.cancel()
	return true
}

// Stopped reports whether Stop was called or the parent context ended.
func (wp *WorkerPool) Stopped() bool {
	return wp.stopped.Load() || wp.ctx.Err() != nil
}

// Close marks the end of submissions; workers exit once the queue drains.
// Submit must not be called concurrently with Close.
func (wp *WorkerPool) Close() {
	if wp.closed.CompareAndSwap(false, true) {
		close(wp.taskQueue)
	}
}

// Wait blocks until every worker has exited and releases the pool context.
func (wp *WorkerPool) Wait() {
	_ = wp.group.Wait()
	wp.cancel()
}

// Done returns a channel closed after every worker has exited.
func (wp *WorkerPool) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wp.Wait()
		close(done)
	}()
	return done
}
