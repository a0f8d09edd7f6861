package inference

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// IdempotentClient guarantees at most one remote job per idempotency key
// within the process: concurrent submits with the same key share one call and
// later submits return the recorded job. Failed submits are not recorded.
type IdempotentClient struct {
	inner Client
	group singleflight.Group

	mu   sync.RWMutex
	jobs map[string]Job
}

func NewIdempotentClient(inner Client) *IdempotentClient {
	return &IdempotentClient{inner: inner, jobs: make(map[string]Job)}
}

func (c *IdempotentClient) Submit(ctx context.Context, modelVersion string, input map[string]any, idempotencyKey string) (Job, error) {
	if idempotencyKey == "" {
		return c.inner.Submit(ctx, modelVersion, input, idempotencyKey)
	}
	if job, ok := c.lookup(idempotencyKey); ok {
		logrus.WithFields(logrus.Fields{
			"idempotency_key": idempotencyKey,
			"job_id":          job.ID,
		}).Info("inference_submit_deduplicated")
		return job, nil
	}

	v, err, _ := c.group.Do(idempotencyKey, func() (interface{}, error) {
		if job, ok := c.lookup(idempotencyKey); ok {
			return job, nil
		}
		job, err := c.inner.Submit(ctx, modelVersion, input, idempotencyKey)
		if err != nil {
			return Job{}, err
		}
		c.mu.Lock()
		c.jobs[idempotencyKey] = job
		c.mu.Unlock()
		return job, nil
	})
	if err != nil {
		return Job{}, err
	}
	return v.(Job), nil
}

func (c *IdempotentClient) Poll(ctx context.Context, job Job) (Prediction, error) {
	return c.inner.Poll(ctx, job)
}

// Forget drops the recorded job for key once its generation is terminal.
func (c *IdempotentClient) Forget(idempotencyKey string) {
	c.mu.Lock()
	delete(c.jobs, idempotencyKey)
	c.mu.Unlock()
	c.group.Forget(idempotencyKey)
}

func (c *IdempotentClient) lookup(key string) (Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	job, ok := c.jobs[key]
	return job, ok
}
