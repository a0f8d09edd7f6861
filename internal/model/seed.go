package model

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"facechanger/internal/config"
	"facechanger/internal/entity"
)

// DefaultHeadProfileName 默认头像配置
const DefaultHeadProfileName = "Masha"

// FallbackParams 头像配置与重做参数均未指定时使用的渲染参数
func FallbackParams() entity.JSONMap {
	return entity.JSONMap{
		"prompt_strength":     0.8,
		"num_outputs":         3,
		"num_inference_steps": 28,
		"guidance_scale":      2.5,
		"output_format":       "png",
	}
}

// SeedDefaultHeadProfile 确保默认头像配置存在；已存在时仅补齐缺失的参数键
func SeedDefaultHeadProfile(ctx context.Context, repo Repository, cfg config.Config) (*entity.DbHeadProfile, error) {
	if repo == nil {
		return nil, nil
	}

	seed := buildDefaultHeadProfile(cfg)
	existing, err := repo.GetHeadProfileByName(ctx, seed.Name)
	switch {
	case err == nil:
		return syncExistingProfile(ctx, repo, existing, seed)
	case errors.Is(err, ErrNotFound):
		if err := repo.CreateHeadProfile(ctx, &seed); err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"head_profile_id": seed.ID,
			"name":            seed.Name,
		}).Info("head_profile_seeded")
		return &seed, nil
	default:
		return nil, err
	}
}

func syncExistingProfile(ctx context.Context, repo Repository, existing *entity.DbHeadProfile, seed entity.DbHeadProfile) (*entity.DbHeadProfile, error) {
	missing := entity.JSONMap{}
	for k, v := range seed.Params {
		if _, ok := existing.Params[k]; !ok {
			missing[k] = v
		}
	}
	if len(missing) == 0 {
		return existing, nil
	}
	if err := repo.UpdateHeadProfile(ctx, existing.ID, entity.HeadProfileUpdates{Params: &missing}); err != nil {
		return nil, err
	}
	return repo.GetHeadProfile(ctx, existing.ID)
}

func buildDefaultHeadProfile(cfg config.Config) entity.DbHeadProfile {
	token := strings.TrimSpace(cfg.DefaultTriggerToken)
	if token == "" {
		token = "tnkfwm1"
	}
	template := strings.TrimSpace(cfg.DefaultPromptTemplate)
	if template == "" {
		template = "a photo of {token} female model"
	}
	return entity.DbHeadProfile{
		Name:           DefaultHeadProfileName,
		TriggerToken:   token,
		PromptTemplate: template,
		Params:         FallbackParams(),
	}
}
