package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"facechanger/internal/entity"
	"facechanger/internal/inference"
)

// ErrMissingImage is returned before any remote call when a frame has no
// original image; the frame is left unchanged.
var ErrMissingImage = errors.New("frame has no original image")

// ErrNoOutputs is a succeeded job that produced nothing to persist.
var ErrNoOutputs = errors.New("inference returned no outputs")

type (
	// RemoteSubmissionError is a 4xx/5xx from the inference service on submit.
	RemoteSubmissionError = inference.RemoteSubmissionError
	// PollTimeoutError is a job that did not finish within the wall-clock budget.
	PollTimeoutError = inference.PollTimeoutError
)

// SubmitError is any failure to start a remote job, including transport
// errors that never produced an HTTP response.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit: %v", e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a missing model or service identifier. It is
// raised at job start and never retried.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s is not set", e.Field)
}

// RemoteJobError is a job that reached a failed or canceled terminal state.
type RemoteJobError struct {
	JobID   string
	Status  inference.Status
	Message string
}

func (e *RemoteJobError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("job %s %s", e.JobID, e.Status)
}

// OutputFailure is one output that could not be persisted.
type OutputFailure struct {
	Index  int
	Source string
	Err    error
}

// PartialOutputError lists the outputs skipped in an otherwise completed run.
type PartialOutputError struct {
	Persisted int
	Failures  []OutputFailure
}

func (e *PartialOutputError) Error() string {
	notes := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		notes = append(notes, fmt.Sprintf("output %d: %v", f.Index, f.Err))
	}
	return fmt.Sprintf("%d of %d outputs failed to persist: %s",
		len(e.Failures), len(e.Failures)+e.Persisted, strings.Join(notes, "; "))
}

// NotificationError is a record-store update that failed after retries. It is
// logged and never propagated out of a generation.
type NotificationError struct {
	Op  string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Op, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// GenerationError is returned by ProcessFrame when the generation ended FAILED.
type GenerationError struct {
	GenerationID int64
	Kind         entity.ErrorKind
	Err          error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation %d failed (%s): %v", e.GenerationID, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// classify maps an orchestration error onto the generation error kind and the
// text recorded on the generation.
func classify(err error) (entity.ErrorKind, string) {
	var (
		cfgErr     *ConfigurationError
		subErr     *RemoteSubmissionError
		timeoutErr *PollTimeoutError
		jobErr     *RemoteJobError
		partialErr *PartialOutputError
		submitErr  *SubmitError
	)
	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &cfgErr), errors.Is(err, inference.ErrNotConfigured):
		return entity.ErrorKindConfig, err.Error()
	case errors.As(err, &subErr):
		return entity.ErrorKindSubmission, subErr.Body
	case errors.As(err, &timeoutErr):
		return entity.ErrorKindTimeout, timeoutErr.Error()
	case errors.As(err, &jobErr):
		return entity.ErrorKindRemote, jobErr.Error()
	case errors.As(err, &partialErr), errors.Is(err, ErrNoOutputs):
		return entity.ErrorKindOutput, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return entity.ErrorKindInternal, err.Error()
	case errors.As(err, &submitErr):
		return entity.ErrorKindSubmission, submitErr.Err.Error()
	default:
		return entity.ErrorKindRemote, err.Error()
	}
}
