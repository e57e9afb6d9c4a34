package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_ReturnsTaskError(t *testing.T) {
	p := New(&Config{MaxWorkers: 2, QueueSize: 4}, nil)
	defer p.Shutdown(context.Background())

	boom := errors.New("boom")
	err := p.Submit(context.Background(), func(ctx context.Context) error { return boom })
	assert.Equal(t, boom, err)

	err = p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestSubmit_RecoversPanic(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	err := p.Submit(context.Background(), func(ctx context.Context) error { panic("bad") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	// the worker survives the panic
	assert.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestSubmit_QueueFull(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.SubmitAsync(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, p.SubmitAsync(context.Background(), func(ctx context.Context) error { return nil }))
	err := p.SubmitAsync(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrWorkerPoolFull)

	close(release)
}

func TestShutdown_RejectsNewTasks(t *testing.T) {
	p := New(nil, nil)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, p.IsClosed())

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrWorkerPoolClosed)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSubmit_ContextCancelled(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueSize: 2}, nil)
	defer p.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// 并发提交与关闭交错时不会 panic，且已接收的任务全部执行
func TestProperty1_ConcurrentSubmitAndShutdown(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted tasks run exactly once", prop.ForAll(
		func(workers, submitters int) bool {
			p := New(&Config{MaxWorkers: workers, QueueSize: 64}, nil)

			var accepted, ran atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < submitters; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 10; j++ {
						err := p.SubmitAsync(context.Background(), func(ctx context.Context) error {
							ran.Add(1)
							return nil
						})
						if err == nil {
							accepted.Add(1)
						}
					}
				}()
			}
			go func() {
				time.Sleep(time.Millisecond)
				_ = p.Shutdown(context.Background())
			}()
			wg.Wait()
			_ = p.Shutdown(context.Background())
			p.workerWg.Wait()

			return accepted.Load() == ran.Load()
		},
		gen.IntRange(1, 8),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
