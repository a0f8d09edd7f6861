package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	submits int32
	fail    atomic.Bool
	delay   time.Duration
}

func (c *countingClient) Submit(ctx context.Context, modelVersion string, input map[string]any, key string) (Job, error) {
	n := atomic.AddInt32(&c.submits, 1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.fail.Load() {
		return Job{}, errors.New("remote down")
	}
	return Job{ID: fmt.Sprintf("job-%d", n)}, nil
}

func (c *countingClient) Poll(ctx context.Context, job Job) (Prediction, error) {
	return Prediction{ID: job.ID, Status: StatusSucceeded}, nil
}

func TestIdempotentClientSubmitsOncePerKey(t *testing.T) {
	inner := &countingClient{}
	client := NewIdempotentClient(inner)

	first, err := client.Submit(context.Background(), "v", nil, "gen-1")
	require.NoError(t, err)
	second, err := client.Submit(context.Background(), "v", nil, "gen-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&inner.submits))

	other, err := client.Submit(context.Background(), "v", nil, "gen-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.EqualValues(t, 2, atomic.LoadInt32(&inner.submits))
}

func TestIdempotentClientConcurrentSubmits(t *testing.T) {
	inner := &countingClient{delay: 20 * time.Millisecond}
	client := NewIdempotentClient(inner)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := client.Submit(context.Background(), "v", nil, "gen-1")
			assert.NoError(t, err)
			ids[i] = job.ID
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&inner.submits))
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestIdempotentClientDoesNotRecordFailures(t *testing.T) {
	inner := &countingClient{}
	inner.fail.Store(true)
	client := NewIdempotentClient(inner)

	_, err := client.Submit(context.Background(), "v", nil, "gen-1")
	require.Error(t, err)

	inner.fail.Store(false)
	job, err := client.Submit(context.Background(), "v", nil, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, "job-2", job.ID)
}

func TestIdempotentClientForget(t *testing.T) {
	inner := &countingClient{}
	client := NewIdempotentClient(inner)

	_, _ = client.Submit(context.Background(), "v", nil, "gen-1")
	client.Forget("gen-1")
	_, _ = client.Submit(context.Background(), "v", nil, "gen-1")
	assert.EqualValues(t, 2, atomic.LoadInt32(&inner.submits))
}
