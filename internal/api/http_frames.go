package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facechanger/internal/entity"
	"facechanger/internal/service"
	"facechanger/internal/storage"
)

type updateFrameRequest struct {
	Accepted *bool `json:"accepted"`
}

type redoRequest struct {
	Params        entity.JSONMap `json:"params"`
	OverwriteMask bool           `json:"overwrite_mask"`
}

type favoritesRequest struct {
	Keys []string `json:"keys"`
}

// GetFrame 返回帧详情
func (h *HTTPHandler) GetFrame(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	frame, err := h.repo.GetFrame(ctx, frameID)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	item, err := h.buildFrameItem(ctx, *frame)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	c.JSON(http.StatusOK, entity.FrameDetailResponse{Frame: item})
}

// UpdateFrame 运营标记帧是否已验收
func (h *HTTPHandler) UpdateFrame(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}

	var req updateFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	updates := entity.FrameUpdates{Accepted: req.Accepted}
	if updates.IsEmpty() {
		BadRequest(c, ErrCodeInvalidRequest, "no fields to update")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.UpdateFrame(ctx, frameID, updates); err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	frame, err := h.repo.GetFrame(ctx, frameID)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	c.JSON(http.StatusOK, frame)
}

// DeleteFrame 删除帧及其生成、版本与收藏记录
func (h *HTTPHandler) DeleteFrame(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.DeleteFrame(ctx, frameID); err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	logrus.WithFields(logrus.Fields{
		"frame_id": frameID,
		"operator": operatorName(c),
	}).Info("frame_deleted")
	c.Status(http.StatusNoContent)
}

// ProcessFrame 将单帧入队处理
func (h *HTTPHandler) ProcessFrame(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}
	req, ok := bindOptionalJSON[processRequest](c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.dispatcher.EnqueueFrame(ctx, frameID, service.ProcessOptions{OverwriteMask: req.OverwriteMask}); err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	c.JSON(http.StatusAccepted, entity.EnqueueResponse{Queued: 1})
}

// RedoFrame 合并重做参数后重新入队，历史输出保留
func (h *HTTPHandler) RedoFrame(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}
	req, ok := bindOptionalJSON[redoRequest](c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	err := h.dispatcher.EnqueueRedo(ctx, frameID, req.Params, service.ProcessOptions{OverwriteMask: req.OverwriteMask})
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	logrus.WithFields(logrus.Fields{
		"frame_id":  frameID,
		"overrides": len(req.Params),
		"operator":  operatorName(c),
	}).Info("frame_redo_requested")
	c.JSON(http.StatusAccepted, entity.EnqueueResponse{Queued: 1})
}

// UploadMask 运营手动上传掩码，覆盖自动定位结果
func (h *HTTPHandler) UploadMask(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		MissingField(c, "file")
		return
	}
	file, err := readUpload(header)
	if err != nil {
		uploadFailed(c, err)
		return
	}
	if file.Ext != "png" {
		ErrorResponse(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "mask must be a png image")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	frame, err := h.repo.GetFrame(ctx, frameID)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	if frame.Status == entity.FrameStatusQueued || frame.Status == entity.FrameStatusRunning {
		ErrorResponse(c, http.StatusConflict, ErrCodeInvalidTransition, "frame is being processed")
		return
	}
	sku, err := h.repo.GetSku(ctx, frame.SkuID)
	if err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}

	key, err := h.storage.Put(ctx, storage.MaskKey(sku.Code, frame.ID), file.Data, file.ContentType)
	if err != nil {
		logrus.WithError(err).WithField("frame_id", frameID).Error("mask_store_failed")
		InternalError(c, "failed to store mask")
		return
	}
	if err := h.repo.SetFrameMask(ctx, frame.ID, entity.MaskResult{Key: key, Strategy: entity.MaskStrategyManual}); err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	if err := h.repo.SetFrameStatus(ctx, frame.ID, entity.FrameStatusMasked); err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}

	logrus.WithFields(logrus.Fields{
		"frame_id": frame.ID,
		"mask_key": key,
		"operator": operatorName(c),
	}).Info("frame_mask_uploaded")

	updated, err := h.repo.GetFrame(ctx, frame.ID)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	item, err := h.buildFrameItem(ctx, *updated)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	c.JSON(http.StatusOK, entity.FrameDetailResponse{Frame: item})
}

// GetFavorites 返回帧的收藏输出
func (h *HTTPHandler) GetFavorites(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	keys, err := h.repo.GetFavorites(ctx, frameID)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	c.JSON(http.StatusOK, entity.FavoritesResponse{Keys: keys})
}

// SetFavorites 整体替换收藏集合，key 可以是规范 key 或可读地址
func (h *HTTPHandler) SetFavorites(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}

	var req favoritesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	keys := make([]string, 0, len(req.Keys))
	for _, ref := range req.Keys {
		if key, ok := h.storage.CanonicalKey(ref); ok {
			ref = key
		}
		keys = append(keys, ref)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	frame, err := h.repo.GetFrame(ctx, frameID)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	for _, key := range keys {
		if !frame.Outputs.Contains(key) {
			ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeInvalidRequest, "favorite is not an output of this frame", gin.H{"key": key})
			return
		}
	}

	if err := h.repo.SetFavorites(ctx, frameID, keys); err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	saved, err := h.repo.GetFavorites(ctx, frameID)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	c.JSON(http.StatusOK, entity.FavoritesResponse{Keys: saved})
}

// ListGenerations 返回帧的全部生成记录
func (h *HTTPHandler) ListGenerations(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.repo.GetFrame(ctx, frameID); err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	generations, err := h.repo.ListGenerations(ctx, frameID)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	if generations == nil {
		generations = []entity.DbGeneration{}
	}
	c.JSON(http.StatusOK, entity.GenerationListResponse{Generations: generations})
}

// ListOutputVersions 返回帧的输出版本
func (h *HTTPHandler) ListOutputVersions(c *gin.Context) {
	frameID, ok := pathID(c, "id", "invalid frame id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.repo.GetFrame(ctx, frameID); err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	versions, err := h.repo.ListOutputVersions(ctx, frameID)
	if err != nil {
		RespondError(c, err, ErrCodeFrameNotFound)
		return
	}
	if versions == nil {
		versions = []entity.DbOutputVersion{}
	}
	c.JSON(http.StatusOK, entity.OutputVersionListResponse{Versions: versions})
}
