package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_RunsJob(t *testing.T) {
	w := New()
	defer w.Close()

	ran := false
	err := w.Do(context.Background(), func(ctx context.Context) { ran = true })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestDo_SerializesJobs(t *testing.T) {
	w := New()
	defer w.Close()

	var running, maxRunning int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Do(context.Background(), func(ctx context.Context) {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxRunning)
}

func TestDo_CanceledBeforeStart(t *testing.T) {
	w := New()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := w.Do(ctx, func(ctx context.Context) { ran = true })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestDo_WaitsForStartedJob(t *testing.T) {
	w := New()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	finished := false

	go func() {
		<-started
		cancel()
	}()

	err := w.Do(ctx, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished = true
	})
	require.NoError(t, err)
	assert.True(t, finished, "Do must not return before a started job finishes")
}

func TestDo_AfterClose(t *testing.T) {
	w := New()
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDo_RecoversPanic(t *testing.T) {
	w := New()
	defer w.Close()

	err := w.Do(context.Background(), func(ctx context.Context) { panic("boom") })
	require.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "boom")

	ran := false
	require.NoError(t, w.Do(context.Background(), func(ctx context.Context) { ran = true }))
	assert.True(t, ran)
}
