package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facechanger/internal/entity"
)

type createHeadProfileRequest struct {
	Name           string         `json:"name" binding:"required"`
	TriggerToken   string         `json:"trigger_token" binding:"required"`
	PromptTemplate string         `json:"prompt_template"`
	ModelVersion   string         `json:"model_version"`
	Params         entity.JSONMap `json:"params"`
}

type updateHeadProfileRequest struct {
	ModelVersion *string        `json:"model_version"`
	Params       entity.JSONMap `json:"params"`
}

func (h *HTTPHandler) ListHeadProfiles(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	profiles, err := h.repo.ListHeadProfiles(ctx)
	if err != nil {
		RespondError(c, err, ErrCodeHeadProfileNotFound)
		return
	}
	if profiles == nil {
		profiles = []entity.DbHeadProfile{}
	}
	c.JSON(http.StatusOK, entity.HeadProfileListResponse{Profiles: profiles})
}

func (h *HTTPHandler) CreateHeadProfile(c *gin.Context) {
	var req createHeadProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	template := strings.TrimSpace(req.PromptTemplate)
	if template == "" {
		template = h.cfg.DefaultPromptTemplate
	}
	profile := &entity.DbHeadProfile{
		Name:           strings.TrimSpace(req.Name),
		TriggerToken:   strings.TrimSpace(req.TriggerToken),
		PromptTemplate: template,
		ModelVersion:   strings.TrimSpace(req.ModelVersion),
		Params:         req.Params,
	}
	if profile.Name == "" {
		MissingField(c, "name")
		return
	}
	if profile.TriggerToken == "" {
		MissingField(c, "trigger_token")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.CreateHeadProfile(ctx, profile); err != nil {
		RespondError(c, err, ErrCodeHeadProfileNotFound)
		return
	}
	logrus.WithFields(logrus.Fields{
		"head_profile_id": profile.ID,
		"name":            profile.Name,
		"operator":        operatorName(c),
	}).Info("head_profile_created")
	c.JSON(http.StatusCreated, profile)
}

// UpdateHeadProfile 修改模型版本或增量合并渲染参数
func (h *HTTPHandler) UpdateHeadProfile(c *gin.Context) {
	profileID, ok := pathID(c, "id", "invalid head profile id")
	if !ok {
		return
	}

	var req updateHeadProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	updates := entity.HeadProfileUpdates{ModelVersion: req.ModelVersion}
	if req.Params != nil {
		params := req.Params
		updates.Params = &params
	}
	if updates.IsEmpty() {
		BadRequest(c, ErrCodeInvalidRequest, "no fields to update")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.UpdateHeadProfile(ctx, profileID, updates); err != nil {
		RespondError(c, err, ErrCodeHeadProfileNotFound)
		return
	}
	profile, err := h.repo.GetHeadProfile(ctx, profileID)
	if err != nil {
		RespondError(c, err, ErrCodeHeadProfileNotFound)
		return
	}
	c.JSON(http.StatusOK, profile)
}
