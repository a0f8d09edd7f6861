package inference

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"facechanger/internal/config"
)

// PollConfig contains configuration for polling remote jobs.
type PollConfig struct {
	Interval   time.Duration
	Timeout    time.Duration
	Backoff    bool
	BackoffMax time.Duration
	// MaxErrors is how many consecutive poll errors are tolerated before giving up.
	MaxErrors int
}

// DefaultPollConfig provides default polling configuration.
var DefaultPollConfig = PollConfig{
	Interval:   2 * time.Second,
	Timeout:    10 * time.Minute,
	Backoff:    false,
	BackoffMax: 30 * time.Second,
	MaxErrors:  3,
}

// PollConfigFromConfig reads polling settings from process config.
func PollConfigFromConfig(cfg config.Config) PollConfig {
	return PollConfig{
		Interval:   cfg.PollInterval,
		Timeout:    cfg.PollTimeout,
		Backoff:    cfg.PollBackoff,
		BackoffMax: cfg.PollBackoffMax,
		MaxErrors:  DefaultPollConfig.MaxErrors,
	}
}

// StatusFunc observes every successful poll.
type StatusFunc func(Prediction)

// Wait polls job until a terminal state, the wall-clock timeout, or ctx
// cancellation. A terminal prediction is returned with a nil error whether
// it succeeded or not; the timeout yields *PollTimeoutError.
func Wait(ctx context.Context, client Client, job Job, config PollConfig, onStatus StatusFunc) (Prediction, error) {
	if client == nil {
		return Prediction{}, errors.New("inference client is required")
	}
	if job.ID == "" && job.PollURL == "" {
		return Prediction{}, errors.New("job id is required")
	}

	interval := config.Interval
	if interval <= 0 {
		interval = DefaultPollConfig.Interval
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultPollConfig.Timeout
	}
	maxErrors := config.MaxErrors
	if maxErrors <= 0 {
		maxErrors = DefaultPollConfig.MaxErrors
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	consecutiveErrors := 0
	last := StatusPending

	// pollCtx bounds both the sleeps and each Poll call.
	expired := func() (Prediction, error) {
		if err := ctx.Err(); err != nil {
			return Prediction{}, err
		}
		logrus.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"attempts": attempts,
			"status":   last,
			"timeout":  timeout.String(),
		}).Warn("inference_poll_timeout")
		return Prediction{}, &PollTimeoutError{JobID: job.ID, Timeout: timeout, LastStatus: last}
	}

	for {
		select {
		case <-pollCtx.Done():
			return expired()

		case <-ticker.C:
			attempts++

			pred, err := client.Poll(pollCtx, job)
			if err != nil {
				if pollCtx.Err() != nil {
					return expired()
				}
				consecutiveErrors++
				logrus.WithFields(logrus.Fields{
					"job_id":  job.ID,
					"attempt": attempts,
					"error":   err,
				}).Warn("inference_poll_error")
				if consecutiveErrors >= maxErrors {
					return Prediction{}, err
				}
				continue
			}
			consecutiveErrors = 0
			last = pred.Status

			logrus.WithFields(logrus.Fields{
				"job_id":  job.ID,
				"status":  pred.Status,
				"attempt": attempts,
			}).Debug("inference_poll_status")

			if onStatus != nil {
				onStatus(pred)
			}
			if pred.Status.IsTerminal() {
				return pred, nil
			}

			if config.Backoff {
				next := interval * 2
				if config.BackoffMax > 0 && next > config.BackoffMax {
					next = config.BackoffMax
				}
				if next != interval {
					ticker.Reset(next)
					interval = next
				}
			}
		}
	}
}
