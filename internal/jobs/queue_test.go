package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Enqueue_DeduplicatesSameKey(t *testing.T) {
	q := NewQueue(2, nil)

	jobA, createdA := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "https://rbi.example/circular?id=1",
	})
	jobB, createdB := q.Enqueue(EnqueueRequest{
		Source:    "cron",
		DedupeKey: "https://rbi.example/circular?id=1",
	})

	require.True(t, createdA)
	require.False(t, createdB)
	require.NotNil(t, jobA)
	require.NotNil(t, jobB)
	assert.Equal(t, jobA.ID, jobB.ID)
}

func TestQueue_Enqueue_AllowsRetryAfterFailure(t *testing.T) {
	q := NewQueue(1, nil)

	var attempts int
	q.Start(func(_ context.Context, _ *IngestJob) error {
		attempts++
		if attempts == 1 {
			return assert.AnError
		}
		return nil
	})
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "retry-key",
	})
	require.True(t, created)
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got != nil && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	second, created := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "retry-key",
	})
	require.True(t, created)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	require.Eventually(t, func() bool {
		got, ok := q.Get(second.ID)
		return ok && got != nil && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Enqueue_AllowsRetryAfterSuccess(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *IngestJob) error { return nil })
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "done-key",
	})
	require.True(t, created)
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got != nil && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	second, created := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "done-key",
	})
	require.True(t, created)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *IngestJob) error { return nil })
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "k1",
		Payload:   IngestPayload{Link: "https://rbi.example/c/1"},
	})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		if !ok || got == nil {
			return false
		}
		return got.Status == StatusSuccess && got.Terminal()
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_FailedJobKeepsError(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *IngestJob) error { return errors.New("embedding failed") })
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "k-fail"})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(job.ID)
	assert.Equal(t, "embedding failed", got.Error)
	assert.Equal(t, 1, q.Counts()[StatusFailed])
}

func TestQueue_ListIsOrderedByCreation(t *testing.T) {
	q := NewQueue(1, nil)

	for i := range 5 {
		_, created := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: fmt.Sprintf("k%d", i)})
		require.True(t, created)
	}

	list := q.List()
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}
	assert.Equal(t, 5, q.Counts()[StatusPending])
}

func TestQueue_PrunesTerminalJobs(t *testing.T) {
	q := NewQueue(1, nil, WithMaxJobs(2))
	q.Start(func(_ context.Context, _ *IngestJob) error { return nil })
	defer q.Stop()

	for i := range 4 {
		job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: fmt.Sprintf("prune-%d", i)})
		require.Eventually(t, func() bool {
			got, ok := q.Get(job.ID)
			return !ok || got.Terminal()
		}, time.Second, 10*time.Millisecond)
	}

	assert.LessOrEqual(t, len(q.List()), 2)
}

func TestQueue_StopCancelsRunningJob(t *testing.T) {
	q := NewQueue(1, nil)
	started := make(chan struct{})
	q.Start(func(ctx context.Context, _ *IngestJob) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "long"})
	<-started
	q.Stop()

	got, ok := q.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.Error)
}

func TestQueue_RetriesTransientFailures(t *testing.T) {
	q := NewQueue(1, nil, WithRetry(3, time.Millisecond))

	var calls int
	q.Start(func(_ context.Context, _ *IngestJob) error {
		calls++
		if calls < 3 {
			return errors.New("qdrant 503")
		}
		return nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "flaky"})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 5*time.Millisecond)

	got, _ := q.Get(job.ID)
	assert.Equal(t, 3, got.Attempts)
	assert.Empty(t, got.Error)
}

func TestQueue_GivesUpAfterLastAttempt(t *testing.T) {
	q := NewQueue(1, nil, WithRetry(2, time.Millisecond))
	q.Start(func(_ context.Context, _ *IngestJob) error { return errors.New("still down") })
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "down"})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusFailed
	}, time.Second, 5*time.Millisecond)

	got, _ := q.Get(job.ID)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "still down", got.Error)
}

func TestQueue_SkipIsNotRetried(t *testing.T) {
	q := NewQueue(1, nil, WithRetry(5, time.Millisecond))
	q.Start(func(_ context.Context, _ *IngestJob) error {
		return fmt.Errorf("%w: no link", ErrSkip)
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "empty"})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSkipped
	}, time.Second, 5*time.Millisecond)

	got, _ := q.Get(job.ID)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, got.Terminal())
	assert.Equal(t, 1, q.Counts()[StatusSkipped])
}
