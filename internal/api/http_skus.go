package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facechanger/internal/entity"
	"facechanger/internal/service"
	"facechanger/internal/storage"
	"facechanger/internal/utils"
)

type createSkuRequest struct {
	Code          string `json:"code" binding:"required"`
	Brand         string `json:"brand"`
	HeadProfileID *int64 `json:"head_profile_id"`
}

type updateSkuRequest struct {
	Brand         *string `json:"brand"`
	HeadProfileID *int64  `json:"head_profile_id"`
	IsDone        *bool   `json:"is_done"`
}

type processRequest struct {
	OverwriteMask bool `json:"overwrite_mask"`
}

// ListSkus 分页列出款号
func (h *HTTPHandler) ListSkus(c *gin.Context) {
	var query entity.SkuQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "无效的查询参数")
		return
	}
	query.Normalize()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	skus, meta, err := h.repo.ListSkus(ctx, &query)
	if err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}
	if skus == nil {
		skus = []entity.DbSku{}
	}
	c.JSON(http.StatusOK, entity.SkuListResponse{Skus: skus, Meta: meta})
}

// CreateSku 新建款号
func (h *HTTPHandler) CreateSku(c *gin.Context) {
	var req createSkuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		MissingField(c, "code")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if req.HeadProfileID != nil {
		if _, err := h.repo.GetHeadProfile(ctx, *req.HeadProfileID); err != nil {
			RespondError(c, err, ErrCodeHeadProfileNotFound)
			return
		}
	}

	sku := &entity.DbSku{
		Code:          code,
		Brand:         strings.TrimSpace(req.Brand),
		HeadProfileID: req.HeadProfileID,
	}
	if err := h.repo.CreateSku(ctx, sku); err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}

	logrus.WithFields(logrus.Fields{
		"sku_id":   sku.ID,
		"sku":      sku.Code,
		"operator": operatorName(c),
	}).Info("sku_created")
	c.JSON(http.StatusCreated, sku)
}

// GetSku 返回款号及其全部帧
func (h *HTTPHandler) GetSku(c *gin.Context) {
	skuID, ok := pathID(c, "id", "invalid sku id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	sku, err := h.repo.GetSku(ctx, skuID)
	if err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}
	frames, err := h.repo.ListFramesForSku(ctx, skuID)
	if err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}

	items := make([]entity.FrameItem, 0, len(frames))
	for _, frame := range frames {
		item, err := h.buildFrameItem(ctx, frame)
		if err != nil {
			RespondError(c, err, ErrCodeFrameNotFound)
			return
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, entity.SkuDetailResponse{Sku: *sku, Frames: items})
}

// UpdateSku 修改品牌、头像配置或完成标记
func (h *HTTPHandler) UpdateSku(c *gin.Context) {
	skuID, ok := pathID(c, "id", "invalid sku id")
	if !ok {
		return
	}

	var req updateSkuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	updates := entity.SkuUpdates{
		Brand:         req.Brand,
		HeadProfileID: req.HeadProfileID,
		IsDone:        req.IsDone,
	}
	if updates.Brand != nil {
		brand := strings.TrimSpace(*updates.Brand)
		updates.Brand = &brand
	}
	if updates.IsEmpty() {
		BadRequest(c, ErrCodeInvalidRequest, "no fields to update")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if updates.HeadProfileID != nil {
		if _, err := h.repo.GetHeadProfile(ctx, *updates.HeadProfileID); err != nil {
			RespondError(c, err, ErrCodeHeadProfileNotFound)
			return
		}
	}
	if err := h.repo.UpdateSku(ctx, skuID, updates); err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}
	sku, err := h.repo.GetSku(ctx, skuID)
	if err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}
	c.JSON(http.StatusOK, sku)
}

// DeleteSku 删除款号及其帧记录，存储中的对象保留
func (h *HTTPHandler) DeleteSku(c *gin.Context) {
	skuID, ok := pathID(c, "id", "invalid sku id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.DeleteSku(ctx, skuID); err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}
	logrus.WithFields(logrus.Fields{
		"sku_id":   skuID,
		"operator": operatorName(c),
	}).Info("sku_deleted")
	c.Status(http.StatusNoContent)
}

// UploadFrames 上传商品图，每个文件成为一个 NEW 状态的帧
func (h *HTTPHandler) UploadFrames(c *gin.Context) {
	skuID, ok := pathID(c, "id", "invalid sku id")
	if !ok {
		return
	}

	files, err := readUploads(c, "files")
	if err != nil {
		uploadFailed(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	sku, err := h.repo.GetSku(ctx, skuID)
	if err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}

	now := h.now().UTC()
	items := make([]entity.FrameItem, 0, len(files))
	for _, file := range files {
		key, err := h.storage.Put(ctx, storage.UploadKey(sku.Code, utils.GenerateUID(), file.Ext, now), file.Data, file.ContentType)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"sku_id": skuID,
				"file":   file.Name,
			}).Error("upload_store_failed")
			InternalError(c, "failed to store upload")
			return
		}
		frame := &entity.DbFrame{SkuID: sku.ID, OriginalKey: key}
		if err := h.repo.CreateFrame(ctx, frame); err != nil {
			RespondError(c, err, ErrCodeSkuNotFound)
			return
		}
		item, err := h.buildFrameItem(ctx, *frame)
		if err != nil {
			RespondError(c, err, ErrCodeFrameNotFound)
			return
		}
		items = append(items, item)
	}

	logrus.WithFields(logrus.Fields{
		"sku_id":   skuID,
		"frames":   len(items),
		"operator": operatorName(c),
	}).Info("frames_uploaded")

	if truthy(c.Query("process")) {
		for _, item := range items {
			if err := h.dispatcher.EnqueueFrame(ctx, item.ID, service.ProcessOptions{}); err != nil {
				RespondError(c, err, ErrCodeFrameNotFound)
				return
			}
		}
	}
	c.JSON(http.StatusCreated, entity.UploadFramesResponse{Frames: items})
}

// ProcessSku 将款号下所有可处理的帧入队
func (h *HTTPHandler) ProcessSku(c *gin.Context) {
	skuID, ok := pathID(c, "id", "invalid sku id")
	if !ok {
		return
	}
	req, ok := bindOptionalJSON[processRequest](c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	queued, err := h.dispatcher.EnqueueSku(ctx, skuID, service.ProcessOptions{OverwriteMask: req.OverwriteMask})
	if err != nil {
		RespondError(c, err, ErrCodeSkuNotFound)
		return
	}
	c.JSON(http.StatusAccepted, entity.EnqueueResponse{Queued: queued})
}

// pathID 解析正整数路径参数，失败时直接写入 400
func pathID(c *gin.Context, name, message string) (int64, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, ErrCodeInvalidRequest, message)
		return 0, false
	}
	return id, true
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON[T any](c *gin.Context) (T, bool) {
	var req T
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		InvalidPayload(c)
		return req, false
	}
	return req, true
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
