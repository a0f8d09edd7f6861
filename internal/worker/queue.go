// Package worker runs frame jobs from a queue on a fixed pool of workers.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"facechanger/internal/config"
)

const (
	QueueTypeMemory = "memory"
	QueueTypeRedis  = "redis"
)

var (
	// ErrQueueClosed is returned by Pop and Push once the queue is closed.
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueFull is returned by a bounded queue that cannot take more jobs.
	ErrQueueFull = errors.New("queue full")
)

// Job 队列中的一条帧任务
type Job struct {
	FrameID       int64     `json:"frame_id"`
	OverwriteMask bool      `json:"overwrite_mask,omitempty"`
	// Reason 记录任务来源：frame、sku 或 redo
	Reason     string    `json:"reason,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (j Job) encode() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJob(payload string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.FrameID <= 0 {
		return Job{}, fmt.Errorf("decode job: invalid frame id %d", job.FrameID)
	}
	return job, nil
}

// Queue is a FIFO of frame jobs shared by producers and the worker pool.
type Queue interface {
	Push(ctx context.Context, job Job) error
	// Pop blocks until a job is available, ctx is done or the queue is closed.
	Pop(ctx context.Context) (Job, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

// NewQueue 根据配置创建任务队列
func NewQueue(cfg config.Config) (Queue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.QueueType)) {
	case "", QueueTypeMemory:
		return NewMemoryQueue(cfg.QueueSize), nil
	case QueueTypeRedis:
		return NewRedisQueueFromURL(cfg.RedisURL, cfg.QueueName)
	default:
		return nil, fmt.Errorf("unsupported queue type: %s", cfg.QueueType)
	}
}
