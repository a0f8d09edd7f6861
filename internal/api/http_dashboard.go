package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"facechanger/internal/entity"
)

// 批次列表默认返回的天数
const defaultBatchLimit = 30

// ListBatches 按创建日期聚合款号进度
func (h *HTTPHandler) ListBatches(c *gin.Context) {
	limit := defaultBatchLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			BadRequest(c, ErrCodeInvalidRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	batches, err := h.repo.ListBatches(ctx, limit)
	if err != nil {
		RespondError(c, err, "")
		return
	}
	if batches == nil {
		batches = []entity.BatchSummary{}
	}
	c.JSON(http.StatusOK, entity.BatchListResponse{Batches: batches})
}

// ListSkuProgress 返回款号维度的帧完成情况，支持 brand 与 date 过滤
func (h *HTTPHandler) ListSkuProgress(c *gin.Context) {
	var query entity.SkuQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "无效的查询参数")
		return
	}
	if query.Date != "" {
		if _, err := time.Parse(entity.BatchDateLayout, query.Date); err != nil {
			BadRequest(c, ErrCodeInvalidRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	query.Normalize()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	progress, err := h.repo.ListSkuProgress(ctx, &query)
	if err != nil {
		RespondError(c, err, "")
		return
	}
	if progress == nil {
		progress = []entity.SkuProgress{}
	}
	c.JSON(http.StatusOK, entity.SkuProgressResponse{Skus: progress})
}

func (h *HTTPHandler) ListBrands(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	brands, err := h.repo.ListBrands(ctx)
	if err != nil {
		RespondError(c, err, "")
		return
	}
	if brands == nil {
		brands = []string{}
	}
	c.JSON(http.StatusOK, entity.BrandListResponse{Brands: brands})
}
