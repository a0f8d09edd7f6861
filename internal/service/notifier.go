package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"facechanger/internal/entity"
	"facechanger/internal/model"
)

const (
	defaultNotifyAttempts = 3
	defaultNotifyBackoff  = 100 * time.Millisecond
	defaultNotifyTimeout  = 10 * time.Second
)

// Notifier records state changes in the record store on a best-effort basis.
// Each update is retried a bounded number of times; a final failure is logged
// as a NotificationError and returned only for inspection, callers carry on.
type Notifier struct {
	repo     model.Repository
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

func NewNotifier(repo model.Repository, attempts int, backoff time.Duration) *Notifier {
	if attempts <= 0 {
		attempts = defaultNotifyAttempts
	}
	if backoff < 0 {
		backoff = defaultNotifyBackoff
	}
	return &Notifier{repo: repo, attempts: attempts, backoff: backoff, timeout: defaultNotifyTimeout}
}

// do runs fn with retries on a context detached from the caller's
// cancellation so a shutting-down worker still records where it stopped.
func (n *Notifier) do(ctx context.Context, op string, fields logrus.Fields, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			break
		}
		if attempt < n.attempts && n.backoff > 0 {
			select {
			case <-ctx.Done():
				attempt = n.attempts
			case <-time.After(n.backoff * time.Duration(attempt)):
			}
		}
	}

	notifyErr := &NotificationError{Op: op, Err: err}
	entry := logrus.WithFields(fields).WithError(err)
	if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, model.ErrTerminalGeneration) {
		entry.Warn("state_change_ignored")
	} else {
		entry.WithField("op", op).Error("notification_failed")
	}
	return notifyErr
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrTerminalGeneration),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// FrameStatus moves a frame that has no active generation yet.
func (n *Notifier) FrameStatus(ctx context.Context, frameID int64, status entity.FrameStatus) error {
	fields := logrus.Fields{"frame_id": frameID, "status": status}
	err := n.do(ctx, "set_frame_status", fields, func(ctx context.Context) error {
		return n.repo.SetFrameStatus(ctx, frameID, status)
	})
	if err == nil {
		logrus.WithFields(fields).Info("frame_status_changed")
	}
	return err
}

// FrameStatusForGeneration moves the frame only while generationID is still
// its active generation. It reports whether the write happened.
func (n *Notifier) FrameStatusForGeneration(ctx context.Context, frameID, generationID int64, status entity.FrameStatus) (bool, error) {
	fields := logrus.Fields{"frame_id": frameID, "generation_id": generationID, "status": status}
	var applied bool
	err := n.do(ctx, "set_frame_status", fields, func(ctx context.Context) error {
		var err error
		applied, err = n.repo.SetFrameStatusForGeneration(ctx, frameID, generationID, status)
		return err
	})
	switch {
	case err != nil:
	case applied:
		logrus.WithFields(fields).Info("frame_status_changed")
	default:
		logrus.WithFields(fields).Info("frame_status_superseded")
	}
	return applied, err
}

func (n *Notifier) GenerationExternalID(ctx context.Context, generationID int64, externalID string) error {
	fields := logrus.Fields{"generation_id": generationID, "external_id": externalID}
	return n.do(ctx, "save_generation_external_id", fields, func(ctx context.Context) error {
		return n.repo.SaveGenerationExternalID(ctx, generationID, externalID)
	})
}

func (n *Notifier) GenerationStatus(ctx context.Context, generationID int64, status entity.GenerationStatus, kind entity.ErrorKind, errText string) error {
	fields := logrus.Fields{"generation_id": generationID, "status": status}
	if kind != "" {
		fields["error_kind"] = kind
	}
	err := n.do(ctx, "set_generation_status", fields, func(ctx context.Context) error {
		return n.repo.SetGenerationStatus(ctx, generationID, status, kind, errText)
	})
	if err == nil {
		logrus.WithFields(fields).Info("generation_status_changed")
	}
	return err
}

func (n *Notifier) GenerationOutputs(ctx context.Context, generationID int64, keys []string) error {
	fields := logrus.Fields{"generation_id": generationID, "outputs": len(keys)}
	return n.do(ctx, "set_generation_outputs", fields, func(ctx context.Context) error {
		return n.repo.SetGenerationOutputs(ctx, generationID, keys)
	})
}

func (n *Notifier) OutputVersion(ctx context.Context, frameID int64, keys []string) (*entity.DbOutputVersion, error) {
	fields := logrus.Fields{"frame_id": frameID, "outputs": len(keys)}
	var version *entity.DbOutputVersion
	err := n.do(ctx, "append_output_version", fields, func(ctx context.Context) error {
		var err error
		version, err = n.repo.AppendOutputVersion(ctx, frameID, keys)
		return err
	})
	if err == nil && version != nil {
		fields["version_index"] = version.VersionIndex
		logrus.WithFields(fields).Info("output_version_appended")
	}
	return version, err
}
