package inference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns predictions from a script, repeating the last entry.
type scriptedClient struct {
	mu      sync.Mutex
	script  []Prediction
	errs    []error
	polls   int
	submits int
}

func (c *scriptedClient) Submit(ctx context.Context, modelVersion string, input map[string]any, key string) (Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits++
	return Job{ID: "job-1", PollURL: "https://example.com/job-1"}, nil
}

func (c *scriptedClient) Poll(ctx context.Context, job Job) (Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.polls
	c.polls++
	if i < len(c.errs) && c.errs[i] != nil {
		return Prediction{}, c.errs[i]
	}
	if i >= len(c.script) {
		i = len(c.script) - 1
	}
	return c.script[i], nil
}

func TestWaitReturnsTerminalPrediction(t *testing.T) {
	client := &scriptedClient{script: []Prediction{
		{Status: StatusPending},
		{Status: StatusRunning},
		{Status: StatusSucceeded, Output: []string{"https://cdn/out1.png"}},
	}}

	var seen []Status
	pred, err := Wait(context.Background(), client, Job{ID: "job-1"}, PollConfig{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
	}, func(p Prediction) { seen = append(seen, p.Status) })

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, pred.Status)
	assert.Equal(t, []string{"https://cdn/out1.png"}, pred.Output)
	assert.Equal(t, []Status{StatusPending, StatusRunning, StatusSucceeded}, seen)
}

func TestWaitFailedIsTerminal(t *testing.T) {
	client := &scriptedClient{script: []Prediction{{Status: StatusFailed, Error: "oom"}}}

	pred, err := Wait(context.Background(), client, Job{ID: "job-1"}, PollConfig{Interval: time.Millisecond, Timeout: time.Second}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, pred.Status)
	assert.Equal(t, "oom", pred.Error)
}

func TestWaitTimesOut(t *testing.T) {
	client := &scriptedClient{script: []Prediction{{Status: StatusRunning}}}

	start := time.Now()
	_, err := Wait(context.Background(), client, Job{ID: "job-1"}, PollConfig{
		Interval: 500 * time.Millisecond,
		Timeout:  2 * time.Second,
	}, nil)
	elapsed := time.Since(start)

	var timeoutErr *PollTimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.Equal(t, "job-1", timeoutErr.JobID)
	assert.Equal(t, StatusRunning, timeoutErr.LastStatus)
	assert.Contains(t, err.Error(), "timeout")
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	assert.Less(t, elapsed, 4*time.Second)
	assert.GreaterOrEqual(t, client.polls, 3)
}

// hangingClient blocks every Poll until its context ends or release elapses.
type hangingClient struct {
	scriptedClient
	release time.Duration
}

func (c *hangingClient) Poll(ctx context.Context, job Job) (Prediction, error) {
	select {
	case <-ctx.Done():
		return Prediction{}, ctx.Err()
	case <-time.After(c.release):
		return Prediction{Status: StatusRunning}, nil
	}
}

func TestWaitTimeoutBoundsHangingPoll(t *testing.T) {
	client := &hangingClient{release: 3 * time.Second}

	start := time.Now()
	_, err := Wait(context.Background(), client, Job{ID: "job-1"}, PollConfig{
		Interval: 10 * time.Millisecond,
		Timeout:  150 * time.Millisecond,
	}, nil)
	elapsed := time.Since(start)

	var timeoutErr *PollTimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.Equal(t, StatusPending, timeoutErr.LastStatus)
	assert.Less(t, elapsed, time.Second)
}

func TestWaitToleratesTransientPollErrors(t *testing.T) {
	boom := errors.New("connection reset")
	client := &scriptedClient{
		errs:   []error{boom, boom, nil},
		script: []Prediction{{}, {}, {Status: StatusSucceeded}},
	}
	pred, err := Wait(context.Background(), client, Job{ID: "job-1"}, PollConfig{Interval: time.Millisecond, Timeout: time.Second, MaxErrors: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, pred.Status)

	client = &scriptedClient{errs: []error{boom, boom}, script: []Prediction{{Status: StatusRunning}}}
	_, err = Wait(context.Background(), client, Job{ID: "job-1"}, PollConfig{Interval: time.Millisecond, Timeout: time.Second, MaxErrors: 2}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestWaitHonoursContext(t *testing.T) {
	client := &scriptedClient{script: []Prediction{{Status: StatusRunning}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Wait(ctx, client, Job{ID: "job-1"}, PollConfig{Interval: 5 * time.Millisecond, Timeout: time.Minute}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitRequiresJob(t *testing.T) {
	_, err := Wait(context.Background(), &scriptedClient{}, Job{}, DefaultPollConfig, nil)
	assert.Error(t, err)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]Status{
		"starting":    StatusPending,
		"IN_QUEUE":    StatusPending,
		"processing":  StatusRunning,
		"IN_PROGRESS": StatusRunning,
		"succeeded":   StatusSucceeded,
		"COMPLETED":   StatusSucceeded,
		"failed":      StatusFailed,
		"canceled":    StatusCanceled,
		"cancelled":   StatusCanceled,
		"whatever":    StatusRunning,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapStatus(in), in)
	}
}
