// Package service drives a frame through masking, remote rendering and output
// persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"facechanger/internal/config"
	"facechanger/internal/entity"
	"facechanger/internal/headmask"
	"facechanger/internal/inference"
	"facechanger/internal/model"
	"facechanger/internal/storage"
)

const promptTokenPlaceholder = "{token}"

var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("facechanger/generation"))

// IdempotencyKey derives the submit token of a generation. Retried submits
// of the same generation carry the same token.
func IdempotencyKey(generationID int64) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(fmt.Sprintf("generation:%d", generationID))).String()
}

// Options 编排器配置
type Options struct {
	DefaultModelVersion string
	TriggerToken        string
	PromptTemplate      string
	Poll                inference.PollConfig
	HTTPClient          *http.Client
	NotifyAttempts      int
	NotifyBackoff       time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		DefaultModelVersion: inference.DefaultModelVersion(cfg),
		TriggerToken:        cfg.DefaultTriggerToken,
		PromptTemplate:      cfg.DefaultPromptTemplate,
		Poll:                inference.PollConfigFromConfig(cfg),
		HTTPClient:          &http.Client{Timeout: 60 * time.Second},
	}
}

// ProcessOptions tunes a single ProcessFrame run.
type ProcessOptions struct {
	// OverwriteMask reruns the head locator even when the frame has a mask.
	OverwriteMask bool
}

// Outcome summarises one ProcessFrame run.
type Outcome struct {
	FrameID      int64                   `json:"frame_id"`
	GenerationID int64                   `json:"generation_id"`
	Status       entity.GenerationStatus `json:"status"`
	MaskStrategy string                  `json:"mask_strategy"`
	Outputs      []string                `json:"outputs,omitempty"`
	VersionIndex int                     `json:"version_index,omitempty"`
	// Superseded is set when a newer generation became active while this one ran.
	Superseded bool                `json:"superseded,omitempty"`
	Partial    *PartialOutputError `json:"-"`
}

type Orchestrator struct {
	repo       model.Repository
	store      storage.Storage
	inference  inference.Client
	locator    *headmask.Locator
	notifier   *Notifier
	httpClient *http.Client
	opts       Options
}

func NewOrchestrator(repo model.Repository, store storage.Storage, client inference.Client, locator *headmask.Locator, opts Options) (*Orchestrator, error) {
	if repo == nil {
		return nil, errors.New("orchestrator requires a record store")
	}
	if store == nil {
		return nil, errors.New("orchestrator requires an object store")
	}
	if locator == nil {
		locator = headmask.NewLocator(headmask.DefaultOptions(), headmask.Detectors{})
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Orchestrator{
		repo:       repo,
		store:      store,
		inference:  client,
		locator:    locator,
		notifier:   NewNotifier(repo, opts.NotifyAttempts, opts.NotifyBackoff),
		httpClient: httpClient,
		opts:       opts,
	}, nil
}

// ProcessFrame masks the frame if needed, submits one render job, waits for
// it and records the outcome. A returned *GenerationError means the
// generation ended FAILED; other errors mean nothing was submitted.
func (o *Orchestrator) ProcessFrame(ctx context.Context, frameID int64, opts ProcessOptions) (*Outcome, error) {
	frame, err := o.repo.GetFrame(ctx, frameID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(frame.OriginalKey) == "" {
		logrus.WithField("frame_id", frameID).Warn("frame_missing_image")
		return nil, ErrMissingImage
	}
	sku, err := o.repo.GetSku(ctx, frame.SkuID)
	if err != nil {
		return nil, fmt.Errorf("load sku of frame %d: %w", frameID, err)
	}
	profile, err := o.headProfile(ctx, sku)
	if err != nil {
		return nil, err
	}
	modelVersion := firstNonEmpty(profile.ModelVersion, o.opts.DefaultModelVersion)
	if o.inference == nil {
		return nil, &ConfigurationError{Field: "inference client"}
	}
	if modelVersion == "" {
		return nil, &ConfigurationError{Field: "model version"}
	}

	strategy, err := o.ensureMask(ctx, frame, sku, opts.OverwriteMask)
	if err != nil {
		return nil, err
	}

	imageURL, err := o.store.ResolveReadableURL(ctx, frame.OriginalKey)
	if err != nil {
		return nil, fmt.Errorf("resolve image url: %w", err)
	}
	maskURL, err := o.store.ResolveReadableURL(ctx, frame.MaskKey)
	if err != nil {
		return nil, fmt.Errorf("resolve mask url: %w", err)
	}

	params := mergeParams(model.FallbackParams(), profile.Params, frame.PendingParams)
	prompt := renderPrompt(profile.PromptTemplate, profile.TriggerToken)
	if override, ok := params["prompt"].(string); ok && strings.TrimSpace(override) != "" {
		prompt = override
	}
	delete(params, "prompt")

	record := entity.JSONMap{}
	for k, v := range params {
		record[k] = v
	}
	record["prompt"] = prompt
	record["model_version"] = modelVersion
	record["image_key"] = frame.OriginalKey
	record["mask_key"] = frame.MaskKey

	generation := &entity.DbGeneration{FrameID: frame.ID, Params: record}
	if err := o.repo.RegisterGeneration(ctx, generation); err != nil {
		return nil, fmt.Errorf("register generation: %w", err)
	}
	outcome := &Outcome{
		FrameID:      frame.ID,
		GenerationID: generation.ID,
		Status:       entity.GenerationStatusPending,
		MaskStrategy: strategy,
	}
	log := logrus.WithFields(logrus.Fields{
		"frame_id":      frame.ID,
		"generation_id": generation.ID,
	})
	log.WithField("model_version", modelVersion).Info("generation_registered")

	input := make(map[string]any, len(params)+3)
	for k, v := range params {
		input[k] = v
	}
	input["prompt"] = prompt
	input["image"] = imageURL
	input["mask"] = maskURL

	key := IdempotencyKey(generation.ID)
	defer o.forget(key)

	job, err := o.inference.Submit(ctx, modelVersion, input, key)
	if err != nil {
		return o.fail(ctx, outcome, &SubmitError{Err: err})
	}
	log.WithField("external_id", job.ID).Info("generation_submitted")

	_ = o.notifier.GenerationExternalID(ctx, generation.ID, job.ID)
	_ = o.notifier.GenerationStatus(ctx, generation.ID, entity.GenerationStatusRunning, "", "")
	outcome.Status = entity.GenerationStatusRunning
	_, _ = o.notifier.FrameStatusForGeneration(ctx, frame.ID, generation.ID, entity.FrameStatusQueued)

	started := false
	pred, err := inference.Wait(ctx, o.inference, job, o.opts.Poll, func(p inference.Prediction) {
		if started {
			return
		}
		started = true
		_, _ = o.notifier.FrameStatusForGeneration(ctx, frame.ID, generation.ID, entity.FrameStatusRunning)
	})
	if err != nil {
		return o.fail(ctx, outcome, err)
	}
	if pred.Status != inference.StatusSucceeded {
		return o.fail(ctx, outcome, &RemoteJobError{JobID: job.ID, Status: pred.Status, Message: pred.Error})
	}

	keys, partial := o.persistOutputs(ctx, outputTarget{
		skuCode:      sku.Code,
		frameID:      frame.ID,
		generationID: generation.ID,
		defaultExt:   outputFormat(params),
	}, pred.Output)
	if len(keys) == 0 {
		if partial != nil {
			return o.fail(ctx, outcome, partial)
		}
		return o.fail(ctx, outcome, ErrNoOutputs)
	}

	notes := ""
	if partial != nil {
		notes = partial.Error()
		outcome.Partial = partial
	}
	_ = o.notifier.GenerationOutputs(ctx, generation.ID, keys)
	_ = o.notifier.GenerationStatus(ctx, generation.ID, entity.GenerationStatusCompleted, "", notes)
	outcome.Status = entity.GenerationStatusCompleted
	outcome.Outputs = keys

	if version, err := o.notifier.OutputVersion(ctx, frame.ID, keys); err == nil && version != nil {
		outcome.VersionIndex = version.VersionIndex
	}
	applied, err := o.notifier.FrameStatusForGeneration(ctx, frame.ID, generation.ID, entity.FrameStatusDone)
	outcome.Superseded = err == nil && !applied

	log.WithFields(logrus.Fields{
		"outputs":    len(keys),
		"version":    outcome.VersionIndex,
		"superseded": outcome.Superseded,
	}).Info("generation_completed")
	return outcome, nil
}

// PrepareRedo merges overrides into the frame's pending params and puts a
// finished frame back into QUEUED. Earlier output versions are kept.
func (o *Orchestrator) PrepareRedo(ctx context.Context, frameID int64, overrides entity.JSONMap) (*entity.DbFrame, error) {
	frame, err := o.repo.GetFrame(ctx, frameID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(frame.OriginalKey) == "" {
		return nil, ErrMissingImage
	}
	if len(overrides) > 0 {
		merged, err := o.repo.SetPendingParams(ctx, frameID, overrides)
		if err != nil {
			return nil, fmt.Errorf("merge redo params: %w", err)
		}
		frame.PendingParams = merged
	}
	if frame.Status.IsTerminal() && frame.HasMask() {
		if err := o.notifier.FrameStatus(ctx, frameID, entity.FrameStatusQueued); err == nil {
			frame.Status = entity.FrameStatusQueued
		}
	}
	logrus.WithFields(logrus.Fields{
		"frame_id":  frameID,
		"overrides": len(overrides),
	}).Info("redo_prepared")
	return frame, nil
}

// Redo starts a new generation for a frame with the given overrides.
func (o *Orchestrator) Redo(ctx context.Context, frameID int64, overrides entity.JSONMap, opts ProcessOptions) (*Outcome, error) {
	if _, err := o.PrepareRedo(ctx, frameID, overrides); err != nil {
		return nil, err
	}
	return o.ProcessFrame(ctx, frameID, opts)
}

// ensureMask returns the mask strategy of the frame, running the head locator
// when the frame has no mask or overwrite is set.
func (o *Orchestrator) ensureMask(ctx context.Context, frame *entity.DbFrame, sku *entity.DbSku, overwrite bool) (string, error) {
	if frame.HasMask() && !overwrite {
		if frame.Status == entity.FrameStatusNew {
			if err := o.notifier.FrameStatus(ctx, frame.ID, entity.FrameStatusMasked); err == nil {
				frame.Status = entity.FrameStatusMasked
			}
		}
		return frame.MaskStrategy, nil
	}

	data, err := o.store.Get(ctx, frame.OriginalKey)
	if err != nil {
		return "", fmt.Errorf("read original image: %w", err)
	}
	// 远程检测器需要可访问的地址；本地检测器只使用字节
	sourceURL, err := o.store.ResolveReadableURL(ctx, frame.OriginalKey)
	if err != nil {
		sourceURL = ""
	}
	src, err := headmask.NewSource(data, sourceURL)
	if err != nil {
		return "", err
	}

	located := o.locator.Locate(ctx, src)
	png, err := headmask.RenderMask(src.Width, src.Height, located.Box)
	if err != nil {
		return "", err
	}
	maskKey, err := o.store.Put(ctx, storage.MaskKey(sku.Code, frame.ID), png, "image/png")
	if err != nil {
		return "", fmt.Errorf("upload mask: %w", err)
	}

	mask := entity.MaskResult{Key: maskKey, Strategy: located.Strategy, Box: located.Box.Slice()}
	if err := o.repo.SetFrameMask(ctx, frame.ID, mask); err != nil {
		return "", fmt.Errorf("save mask: %w", err)
	}
	frame.MaskKey = mask.Key
	frame.MaskStrategy = mask.Strategy
	frame.MaskBox = entity.IntArray(mask.Box)

	logrus.WithFields(logrus.Fields{
		"frame_id": frame.ID,
		"strategy": located.Strategy,
		"box":      located.Box.String(),
		"mask_key": maskKey,
	}).Info("frame_masked")

	if err := o.notifier.FrameStatus(ctx, frame.ID, entity.FrameStatusMasked); err == nil {
		frame.Status = entity.FrameStatusMasked
	}
	return located.Strategy, nil
}

// fail records a FAILED generation and moves the frame to FAILED if the
// generation is still active.
func (o *Orchestrator) fail(ctx context.Context, outcome *Outcome, cause error) (*Outcome, error) {
	kind, text := classify(cause)
	_ = o.notifier.GenerationStatus(ctx, outcome.GenerationID, entity.GenerationStatusFailed, kind, text)
	applied, err := o.notifier.FrameStatusForGeneration(ctx, outcome.FrameID, outcome.GenerationID, entity.FrameStatusFailed)
	outcome.Status = entity.GenerationStatusFailed
	outcome.Superseded = err == nil && !applied

	logrus.WithError(cause).WithFields(logrus.Fields{
		"frame_id":      outcome.FrameID,
		"generation_id": outcome.GenerationID,
		"error_kind":    kind,
	}).Error("generation_failed")
	return outcome, &GenerationError{GenerationID: outcome.GenerationID, Kind: kind, Err: cause}
}

// forget releases the in-process submit record once the generation is terminal.
func (o *Orchestrator) forget(key string) {
	if f, ok := o.inference.(interface{ Forget(string) }); ok {
		f.Forget(key)
	}
}

// headProfile returns the SKU's head profile, the default profile, or a
// profile built from process defaults when neither exists.
func (o *Orchestrator) headProfile(ctx context.Context, sku *entity.DbSku) (*entity.DbHeadProfile, error) {
	if sku.HeadProfileID != nil {
		profile, err := o.repo.GetHeadProfile(ctx, *sku.HeadProfileID)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"sku_id":          sku.ID,
			"head_profile_id": *sku.HeadProfileID,
		}).Warn("head_profile_missing")
	}
	profile, err := o.repo.GetHeadProfileByName(ctx, model.DefaultHeadProfileName)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	return &entity.DbHeadProfile{
		Name:           model.DefaultHeadProfileName,
		TriggerToken:   o.opts.TriggerToken,
		PromptTemplate: o.opts.PromptTemplate,
	}, nil
}

// mergeParams layers parameter maps; later layers win.
func mergeParams(layers ...entity.JSONMap) entity.JSONMap {
	merged := entity.JSONMap{}
	for _, layer := range layers {
		for k, v := range layer {
			if v == nil {
				continue
			}
			merged[k] = v
		}
	}
	return merged
}

func renderPrompt(template, token string) string {
	template = strings.TrimSpace(template)
	if template == "" {
		template = promptTokenPlaceholder
	}
	return strings.TrimSpace(strings.ReplaceAll(template, promptTokenPlaceholder, strings.TrimSpace(token)))
}

func outputFormat(params entity.JSONMap) string {
	if v, ok := params["output_format"].(string); ok && strings.TrimSpace(v) != "" {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return "png"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
