package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPool(t *testing.T, concurrency int) *Pool {
	t.Helper()
	p := NewPool(PoolConfig{Logger: testLogger(), Concurrency: concurrency})
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)
	return p
}

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool(PoolConfig{})
	assert.Equal(t, 1, p.concurrency)
	assert.Equal(t, 0, p.queueSize)
	assert.NotNil(t, p.logger)
	assert.False(t, p.Running())
}

func TestPool_DoReturnsJobError(t *testing.T) {
	p := startPool(t, 2)
	want := errors.New("boom")

	err := p.Do(context.Background(), func() error { return want })
	assert.ErrorIs(t, err, want)

	err = p.Do(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const limit = 3
	p := startPool(t, limit)

	var active, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func() error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Positive(t, peak.Load())
}

func TestPool_DoRecoversPanic(t *testing.T) {
	p := startPool(t, 1)

	err := p.Do(context.Background(), func() error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// Pool keeps serving after a panic
	assert.NoError(t, p.Do(context.Background(), func() error { return nil }))
}

func TestPool_DoContextCancelled(t *testing.T) {
	p := startPool(t, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_DoAfterStop(t *testing.T) {
	p := NewPool(PoolConfig{Logger: testLogger(), Concurrency: 1})
	require.NoError(t, p.Start(context.Background()))
	p.Stop()

	err := p.Do(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestPool_StartStopIdempotent(t *testing.T) {
	p := NewPool(PoolConfig{Logger: testLogger(), Concurrency: 2})
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())

	p.Stop()
	p.Stop()
	assert.False(t, p.Running())
}

func TestPool_Health(t *testing.T) {
	p := startPool(t, 4)

	h := p.Health()
	assert.True(t, h.Running)
	assert.Equal(t, 4, h.Concurrency)
	assert.Equal(t, 0, h.Queued)
}

func TestPool_DoAfterStartContextCancelled(t *testing.T) {
	p := NewPool(PoolConfig{Logger: testLogger(), Concurrency: 2})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !p.Running() }, time.Second, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- p.Do(context.Background(), func() error { return nil })
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrPoolStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Do blocked after the start context was cancelled")
	}
	p.Stop()
}

func TestPool_RestartAfterStartContextCancelled(t *testing.T) {
	p := NewPool(PoolConfig{Logger: testLogger(), Concurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !p.Running() }, time.Second, 10*time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	assert.NoError(t, p.Do(context.Background(), func() error { return nil }))
}

func TestPool_Ping(t *testing.T) {
	p := NewPool(PoolConfig{Logger: testLogger(), Concurrency: 1})
	assert.ErrorIs(t, p.Ping(context.Background()), ErrPoolStopped)

	require.NoError(t, p.Start(context.Background()))
	assert.NoError(t, p.Ping(context.Background()))

	p.Stop()
	assert.ErrorIs(t, p.Ping(context.Background()), ErrPoolStopped)
}
