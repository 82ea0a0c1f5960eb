package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/shift-reports/internal/common"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestProcessorQueue_RunsAllJobsAndDrains(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]string{}
	)
	q := NewProcessorQueue(func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.UploadID] = common.RequestIDFromContext(ctx)
		return nil
	}, discard(), WithWorkers(3), WithQueueSize(2))

	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, q.Enqueue(context.Background(), Job{UploadID: ids[i]}))
	}
	q.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 10)
	for _, id := range ids {
		assert.NotEmpty(t, seen[id], "trace id is propagated")
	}
}

func TestProcessorQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(func(context.Context, Job) error { return nil }, discard())
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{UploadID: uuid.New()})
	assert.True(t, errors.Is(err, ErrQueueClosed))
}

func TestProcessorQueue_FailuresAndPanicsDoNotStopWorkers(t *testing.T) {
	var n atomic.Int32
	q := NewProcessorQueue(func(_ context.Context, job Job) error {
		n.Add(1)
		switch job.Path {
		case "panic":
			panic("boom")
		case "fail":
			return errors.New("nope")
		}
		return nil
	}, discard(), WithWorkers(1))

	for _, p := range []string{"panic", "fail", "ok"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p}))
	}
	q.Shutdown(context.Background())
	assert.EqualValues(t, 3, n.Load())
}

func TestProcessorQueue_JobTimeout(t *testing.T) {
	got := make(chan error, 1)
	q := NewProcessorQueue(func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	}, discard(), WithWorkers(1), WithProcessTimeout(20*time.Millisecond))

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "slow"}))
	select {
	case err := <-got:
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	case <-time.After(2 * time.Second):
		t.Fatal("job context never expired")
	}
	q.Shutdown(context.Background())
}
