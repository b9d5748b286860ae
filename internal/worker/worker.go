package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by Do after Close
	ErrClosed = errors.New("worker closed")
	// ErrPanic wraps a panic raised by a job
	ErrPanic = errors.New("worker job panicked")
)

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan error
}

// Worker runs jobs one at a time on a single background goroutine.
// One Worker is shared by every autocomplete controller of a process.
type Worker struct {
	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New starts a worker
func New() *Worker {
	w := &Worker{
		jobs: make(chan job),
		quit: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case j := <-w.jobs:
			if err := j.ctx.Err(); err != nil {
				j.done <- err
				continue
			}
			j.done <- run(j)
		}
	}
}

// run calls the job, turning a panic into an error so the loop survives it
func run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	j.fn(j.ctx)
	return nil
}

// Do runs fn on the worker goroutine. If ctx is done before fn starts, fn is
// skipped and ctx.Err() is returned. Once fn has started, Do waits for it to
// return regardless of ctx, so whatever fn produced is never dropped. A panic
// in fn is returned as ErrPanic.
func (w *Worker) Do(ctx context.Context, fn func(ctx context.Context)) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return ErrClosed
	}
	return <-j.done
}

// Close stops the worker after the job in progress, if any. It is safe to
// call more than once.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.quit) })
	w.wg.Wait()
}
