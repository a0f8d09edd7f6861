package sql

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"facechanger/internal/entity"
)

// CreateSku inserts a new sku.
func (r *GormRepository) CreateSku(ctx context.Context, sku *entity.DbSku) error {
	if err := r.ready(); err != nil {
		return err
	}
	if sku == nil {
		return fmt.Errorf("sku is nil")
	}
	return mapError(r.db.WithContext(ctx).Create(sku).Error, "sku "+sku.Code)
}

func (r *GormRepository) GetSku(ctx context.Context, id int64) (*entity.DbSku, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var sku entity.DbSku
	if err := r.db.WithContext(ctx).First(&sku, id).Error; err != nil {
		return nil, mapError(err, fmt.Sprintf("sku %d", id))
	}
	return &sku, nil
}

func (r *GormRepository) GetSkuByCode(ctx context.Context, code string) (*entity.DbSku, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, fmt.Errorf("sku code is empty")
	}
	var sku entity.DbSku
	if err := r.db.WithContext(ctx).Where("code = ?", trimmed).First(&sku).Error; err != nil {
		return nil, mapError(err, "sku "+trimmed)
	}
	return &sku, nil
}

func (r *GormRepository) skuQuery(ctx context.Context, params *entity.SkuQuery) (*gorm.DB, error) {
	query := r.db.WithContext(ctx).Model(&entity.DbSku{})
	if params == nil {
		return query, nil
	}
	if brand := strings.TrimSpace(params.Brand); brand != "" {
		query = query.Where("brand = ?", brand)
	}
	if date := strings.TrimSpace(params.Date); date != "" {
		start, end, err := dayRange(date)
		if err != nil {
			return nil, err
		}
		query = query.Where("created_at >= ? AND created_at < ?", start, end)
	}
	return query, nil
}

// ListSkus returns paginated skus, newest first.
func (r *GormRepository) ListSkus(ctx context.Context, params *entity.SkuQuery) ([]entity.DbSku, *entity.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, nil, err
	}
	normalized := entity.SkuQuery{}
	if params != nil {
		normalized = *params
	}
	normalized.Normalize()

	query, err := r.skuQuery(ctx, &normalized)
	if err != nil {
		return nil, nil, err
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, nil, err
	}

	offset := (normalized.Page - 1) * normalized.PageSize
	var skus []entity.DbSku
	if err := query.Order("id DESC").Offset(offset).Limit(normalized.PageSize).Find(&skus).Error; err != nil {
		return nil, nil, err
	}
	return skus, r.calculatePagination(totalCount, normalized.Page, normalized.PageSize), nil
}

func (r *GormRepository) UpdateSku(ctx context.Context, id int64, updates entity.SkuUpdates) error {
	if err := r.ready(); err != nil {
		return err
	}
	if updates.IsEmpty() {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&entity.DbSku{}).Where("id = ?", id).Updates(updates.ToMap())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mapError(gorm.ErrRecordNotFound, fmt.Sprintf("sku %d", id))
	}
	return nil
}

// DeleteSku removes a sku and cascades to its frames.
func (r *GormRepository) DeleteSku(ctx context.Context, id int64) error {
	if err := r.ready(); err != nil {
		return err
	}
	var frameIDs []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.DbFrame{}).Where("sku_id = ?", id).Pluck("id", &frameIDs).Error; err != nil {
			return err
		}
		if err := deleteFrameRows(tx, frameIDs); err != nil {
			return err
		}
		result := tx.Delete(&entity.DbSku{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return mapError(gorm.ErrRecordNotFound, fmt.Sprintf("sku %d", id))
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.forgetFrameLocks(frameIDs...)
	return nil
}

type frameStatusCount struct {
	SkuID  int64
	Status entity.FrameStatus
	N      int
}

func (r *GormRepository) frameCounts(ctx context.Context) (map[int64]entity.SkuFrameCounts, error) {
	var rows []frameStatusCount
	err := r.db.WithContext(ctx).
		Model(&entity.DbFrame{}).
		Select("sku_id, status, COUNT(*) AS n").
		Group("sku_id, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]entity.SkuFrameCounts)
	for _, row := range rows {
		c := counts[row.SkuID]
		c.SkuID = row.SkuID
		c.AddN(row.Status, row.N)
		counts[row.SkuID] = c
	}
	return counts, nil
}

// ListBatches 按创建日期聚合 SKU 进度
func (r *GormRepository) ListBatches(ctx context.Context, limit int) ([]entity.BatchSummary, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var skus []entity.DbSku
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&skus).Error; err != nil {
		return nil, err
	}
	counts, err := r.frameCounts(ctx)
	if err != nil {
		return nil, err
	}
	return entity.SummarizeBatches(skus, counts, limit), nil
}

func (r *GormRepository) ListSkuProgress(ctx context.Context, params *entity.SkuQuery) ([]entity.SkuProgress, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query, err := r.skuQuery(ctx, params)
	if err != nil {
		return nil, err
	}
	var skus []entity.DbSku
	if err := query.Order("id DESC").Find(&skus).Error; err != nil {
		return nil, err
	}
	counts, err := r.frameCounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entity.SkuProgress, 0, len(skus))
	for _, sku := range skus {
		out = append(out, entity.NewSkuProgress(sku, counts[sku.ID]))
	}
	return out, nil
}

func (r *GormRepository) ListBrands(ctx context.Context) ([]string, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var brands []string
	err := r.db.WithContext(ctx).
		Model(&entity.DbSku{}).
		Where("brand IS NOT NULL AND brand <> ''").
		Distinct("brand").
		Order("brand ASC").
		Pluck("brand", &brands).Error
	if err != nil {
		return nil, err
	}
	return brands, nil
}
