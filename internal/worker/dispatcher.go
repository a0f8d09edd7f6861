package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"facechanger/internal/entity"
	"facechanger/internal/model"
	"facechanger/internal/service"
)

const (
	ReasonFrame = "frame"
	ReasonSku   = "sku"
	ReasonRedo  = "redo"
)

// RedoPreparer merges redo overrides before the job is queued.
type RedoPreparer interface {
	PrepareRedo(ctx context.Context, frameID int64, overrides entity.JSONMap) (*entity.DbFrame, error)
}

// Dispatcher turns operator requests into queued frame jobs.
type Dispatcher struct {
	repo  model.Repository
	queue Queue
	redo  RedoPreparer
	now   func() time.Time
}

func NewDispatcher(repo model.Repository, queue Queue, redo RedoPreparer) *Dispatcher {
	return &Dispatcher{repo: repo, queue: queue, redo: redo, now: time.Now}
}

// EnqueueFrame queues one frame.
func (d *Dispatcher) EnqueueFrame(ctx context.Context, frameID int64, opts service.ProcessOptions) error {
	frame, err := d.repo.GetFrame(ctx, frameID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(frame.OriginalKey) == "" {
		return fmt.Errorf("frame %d: %w", frameID, service.ErrMissingImage)
	}
	return d.push(ctx, frameID, opts.OverwriteMask, ReasonFrame)
}

// EnqueueSku queues every frame of the SKU that has an image and is not
// already in flight. It returns the number of queued frames.
func (d *Dispatcher) EnqueueSku(ctx context.Context, skuID int64, opts service.ProcessOptions) (int, error) {
	if _, err := d.repo.GetSku(ctx, skuID); err != nil {
		return 0, err
	}
	frames, err := d.repo.ListFramesForSku(ctx, skuID)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, frame := range frames {
		if strings.TrimSpace(frame.OriginalKey) == "" {
			continue
		}
		if frame.Status == entity.FrameStatusQueued || frame.Status == entity.FrameStatusRunning {
			continue
		}
		if err := d.push(ctx, frame.ID, opts.OverwriteMask, ReasonSku); err != nil {
			return queued, err
		}
		queued++
	}
	logrus.WithFields(logrus.Fields{
		"sku_id": skuID,
		"frames": len(frames),
		"queued": queued,
	}).Info("sku_enqueued")
	return queued, nil
}

// EnqueueRedo merges overrides into the frame's pending params and queues it.
// Prior output versions stay untouched.
func (d *Dispatcher) EnqueueRedo(ctx context.Context, frameID int64, overrides entity.JSONMap, opts service.ProcessOptions) error {
	if d.redo == nil {
		return errors.New("redo is not available")
	}
	if _, err := d.redo.PrepareRedo(ctx, frameID, overrides); err != nil {
		return err
	}
	return d.push(ctx, frameID, opts.OverwriteMask, ReasonRedo)
}

func (d *Dispatcher) push(ctx context.Context, frameID int64, overwrite bool, reason string) error {
	job := Job{FrameID: frameID, OverwriteMask: overwrite, Reason: reason, EnqueuedAt: d.now().UTC()}
	if err := d.queue.Push(ctx, job); err != nil {
		return fmt.Errorf("enqueue frame %d: %w", frameID, err)
	}
	logrus.WithFields(logrus.Fields{
		"frame_id": frameID,
		"reason":   reason,
	}).Info("frame_enqueued")
	return nil
}
