package service

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"facechanger/internal/config"
	"facechanger/internal/headmask"
	"facechanger/internal/inference"
	"facechanger/internal/segmentation"
	"facechanger/internal/vision"
)

// BuildLocator wires the cascade detectors the config enables. Without a
// vision sidecar and with segmentation off the locator falls back to the
// centre box for every image.
func BuildLocator(cfg config.Config, client inference.Client) (*headmask.Locator, error) {
	opts := headmask.OptionsFromConfig(cfg)
	var detectors headmask.Detectors

	if strings.TrimSpace(cfg.VisionURL) != "" {
		vc, err := vision.NewClient(cfg.VisionURL, &http.Client{Timeout: 30 * time.Second})
		if err != nil {
			return nil, err
		}
		detectors = vc.Detectors()
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.SegmentMode))
	opts.SegmentMode = mode
	if mode != "" && mode != headmask.SegmentOff {
		if client == nil {
			return nil, &ConfigurationError{Field: "inference client for segmentation"}
		}
		seg, err := segmentation.NewClient(client, cfg.SegmentModelVersion, inference.PollConfigFromConfig(cfg))
		if err != nil {
			return nil, err
		}
		detectors.Segmenter = seg
	}

	locator := headmask.NewLocator(opts, detectors)
	logrus.WithFields(logrus.Fields{
		"strategies":   locator.Strategies(),
		"segment_mode": opts.SegmentMode,
	}).Info("head_locator_ready")
	return locator, nil
}
