package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/notifyd/internal/queue"
)

func TestQueue_ProcessesEveryItem(t *testing.T) {
	var mu sync.Mutex
	var got []int
	q, err := queue.New(func(_ context.Context, n int) error {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		return nil
	}, queue.Config{Workers: 2})
	require.NoError(t, err)
	q.Start(context.Background())

	for i := range 10 {
		require.NoError(t, q.Enqueue(context.Background(), i))
	}
	require.NoError(t, q.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.Zero(t, q.Outstanding())
}

func TestQueue_EnqueueBeforeStart(t *testing.T) {
	var count atomic.Int32
	q, err := queue.New(func(context.Context, string) error {
		count.Add(1)
		return nil
	}, queue.Config{})
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(context.Background(), "a"))
	assert.Equal(t, 1, q.Outstanding())
	q.Start(context.Background())
	require.NoError(t, q.Close(context.Background()))
	assert.EqualValues(t, 1, count.Load())
}

func TestQueue_RetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	q, err := queue.New(func(context.Context, string) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, queue.Config{Workers: 1, MaxAttempts: 5, RetryDelay: 10 * time.Millisecond})
	require.NoError(t, err)
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "job"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.EqualValues(t, 3, attempts.Load())
}

func TestQueue_DiscardsAfterMaxAttempts(t *testing.T) {
	var attempts atomic.Int32
	var discarded atomic.Int32
	q, err := queue.New(func(context.Context, string) error {
		attempts.Add(1)
		return errors.New("permanent")
	}, queue.Config{
		Workers:     1,
		MaxAttempts: 2,
		OnDiscard: func(n int, err error) {
			discarded.Store(int32(n))
		},
	})
	require.NoError(t, err)
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "job"))
	require.NoError(t, q.Close(context.Background()))
	assert.EqualValues(t, 2, attempts.Load())
	assert.EqualValues(t, 2, discarded.Load())
}

func TestQueue_PanicIsRetried(t *testing.T) {
	var attempts atomic.Int32
	q, err := queue.New(func(context.Context, string) error {
		if attempts.Add(1) == 1 {
			panic("first run explodes")
		}
		return nil
	}, queue.Config{Workers: 1, MaxAttempts: 2})
	require.NoError(t, err)
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "job"))
	require.NoError(t, q.Close(context.Background()))
	assert.EqualValues(t, 2, attempts.Load())
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q, err := queue.New(func(context.Context, int) error { return nil }, queue.Config{})
	require.NoError(t, err)
	q.Start(context.Background())
	require.NoError(t, q.Close(context.Background()))

	assert.ErrorIs(t, q.Enqueue(context.Background(), 1), queue.ErrClosed)
	assert.NoError(t, q.Close(context.Background()))
}

func TestQueue_CloseTimesOut(t *testing.T) {
	release := make(chan struct{})
	q, err := queue.New(func(ctx context.Context, _ int) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, queue.Config{Workers: 1})
	require.NoError(t, err)
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = q.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestQueue_NilHandler(t *testing.T) {
	_, err := queue.New[int](nil, queue.Config{})
	assert.Error(t, err)
}
