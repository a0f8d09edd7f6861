package inference

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"facechanger/internal/config"
)

const (
	DriverReplicate = "replicate"
	DriverFal       = "fal"
)

// NewClient builds the configured driver wrapped for idempotent submits.
func NewClient(cfg config.Config) (*IdempotentClient, error) {
	httpClient := &http.Client{Timeout: 60 * time.Second}

	var (
		inner Client
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.InferenceDriver)) {
	case "", DriverReplicate:
		inner, err = NewReplicate(cfg.ReplicateAPIToken, cfg.ReplicateBaseURL, httpClient)
	case DriverFal:
		inner, err = NewFalAI(cfg.FalAPIKey, "", httpClient)
	default:
		return nil, fmt.Errorf("unsupported inference driver: %s", cfg.InferenceDriver)
	}
	if err != nil {
		return nil, err
	}
	return NewIdempotentClient(inner), nil
}

// DefaultModelVersion returns the model identifier for the configured driver.
func DefaultModelVersion(cfg config.Config) string {
	if strings.EqualFold(strings.TrimSpace(cfg.InferenceDriver), DriverFal) {
		return strings.TrimSpace(cfg.FalModel)
	}
	return strings.TrimSpace(cfg.ReplicateModelVersion)
}
