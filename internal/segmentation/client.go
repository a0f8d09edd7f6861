// Package segmentation runs a text-prompted segmentation model on the hosted
// inference service and returns the mask image it produces.
package segmentation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"facechanger/internal/inference"
	"facechanger/internal/utils"
)

const defaultPromptField = "text_prompt"

type Client struct {
	inference    inference.Client
	modelVersion string
	promptField  string
	poll         inference.PollConfig
	httpClient   *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithPromptField sets the model input field carrying the text prompt.
func WithPromptField(field string) Option {
	return func(c *Client) {
		if strings.TrimSpace(field) != "" {
			c.promptField = field
		}
	}
}

// WithHTTPClient sets the client used to download the mask.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(client inference.Client, modelVersion string, poll inference.PollConfig, opts ...Option) (*Client, error) {
	if client == nil {
		return nil, errors.New("segmentation requires an inference client")
	}
	if strings.TrimSpace(modelVersion) == "" {
		return nil, fmt.Errorf("segmentation model version: %w", inference.ErrNotConfigured)
	}
	c := &Client{
		inference:    client,
		modelVersion: strings.TrimSpace(modelVersion),
		promptField:  defaultPromptField,
		poll:         poll,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Segment submits the image with prompt, waits for the model and downloads
// the first output image.
func (c *Client) Segment(ctx context.Context, imageURL, prompt string) ([]byte, error) {
	input := map[string]any{
		"image":       imageURL,
		c.promptField: prompt,
	}
	job, err := c.inference.Submit(ctx, c.modelVersion, input, "")
	if err != nil {
		return nil, fmt.Errorf("segmentation submit: %w", err)
	}

	pred, err := inference.Wait(ctx, c.inference, job, c.poll, nil)
	if err != nil {
		return nil, fmt.Errorf("segmentation wait: %w", err)
	}
	if pred.Status != inference.StatusSucceeded {
		return nil, fmt.Errorf("segmentation %s: %s", pred.Status, pred.Error)
	}
	if len(pred.Output) == 0 {
		return nil, errors.New("segmentation returned no mask")
	}

	data, _, err := utils.Download(ctx, c.httpClient, pred.Output[0])
	if err != nil {
		return nil, fmt.Errorf("segmentation download: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"job_id": job.ID,
		"prompt": prompt,
		"bytes":  len(data),
	}).Debug("segmentation_mask_ready")
	return data, nil
}
