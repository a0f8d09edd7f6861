package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"facechanger/internal/service"
)

// 队列读取失败后的等待时间
const popRetryDelay = 2 * time.Second

// Processor runs one frame job to completion.
type Processor interface {
	ProcessFrame(ctx context.Context, frameID int64, opts service.ProcessOptions) (*service.Outcome, error)
}

// Stats 工作池累计计数
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool runs a fixed number of workers. Each worker finishes its frame job,
// including the blocking poll, before taking the next one, so the pool size
// bounds the number of in-flight remote jobs.
type Pool struct {
	queue     Queue
	processor Processor
	size      int

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

func NewPool(queue Queue, processor Processor, size int) (*Pool, error) {
	if queue == nil {
		return nil, errors.New("worker pool requires a queue")
	}
	if processor == nil {
		return nil, errors.New("worker pool requires a processor")
	}
	if size <= 0 {
		size = 1
	}
	return &Pool{queue: queue, processor: processor, size: size}, nil
}

// Run blocks until ctx is cancelled or the queue is closed. Job failures are
// logged; they never stop a worker.
func (p *Pool) Run(ctx context.Context) error {
	logrus.WithField("workers", p.size).Info("worker_pool_started")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		id := i + 1
		g.Go(func() error {
			return p.loop(ctx, id)
		})
	}
	err := g.Wait()
	logrus.WithFields(logrus.Fields{
		"processed": p.processed.Load(),
		"failed":    p.failed.Load(),
	}).Info("worker_pool_stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, id int) error {
	for {
		job, err := p.queue.Pop(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrQueueClosed), ctx.Err() != nil:
			return nil
		default:
			logrus.WithError(err).WithField("worker", id).Error("queue_pop_failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(popRetryDelay):
			}
			continue
		}
		p.handle(ctx, id, job)
	}
}

func (p *Pool) handle(ctx context.Context, id int, job Job) {
	p.active.Add(1)
	defer p.active.Add(-1)

	log := logrus.WithFields(logrus.Fields{
		"worker":   id,
		"frame_id": job.FrameID,
		"reason":   job.Reason,
	})
	started := time.Now()

	outcome, err := p.safeProcess(ctx, job)
	fields := logrus.Fields{"elapsed": time.Since(started).Round(time.Millisecond).String()}
	if outcome != nil {
		fields["generation_id"] = outcome.GenerationID
		fields["status"] = outcome.Status
	}
	if err != nil {
		p.failed.Add(1)
		log.WithFields(fields).WithError(err).Warn("frame_job_failed")
		return
	}
	p.processed.Add(1)
	log.WithFields(fields).Info("frame_job_done")
}

// safeProcess keeps a panicking job from taking its worker down.
func (p *Pool) safeProcess(ctx context.Context, job Job) (outcome *service.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"frame_id": job.FrameID,
				"panic":    r,
				"stack":    string(debug.Stack()),
			}).Error("frame_job_panic")
			err = fmt.Errorf("frame job panicked: %v", r)
		}
	}()
	return p.processor.ProcessFrame(ctx, job.FrameID, service.ProcessOptions{OverwriteMask: job.OverwriteMask})
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.size,
		Active:    p.active.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}
