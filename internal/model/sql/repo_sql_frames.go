package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"facechanger/internal/entity"
	"facechanger/internal/ledger"
)

// 条件更新冲突时的最大重试次数
const maxConflictRetries = 3

var errStaleWrite = errors.New("frame changed concurrently")

// CreateFrame inserts a new frame in NEW status.
func (r *GormRepository) CreateFrame(ctx context.Context, frame *entity.DbFrame) error {
	if err := r.ready(); err != nil {
		return err
	}
	if frame == nil {
		return fmt.Errorf("frame is nil")
	}
	if frame.Status == "" {
		frame.Status = entity.FrameStatusNew
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entity.DbSku{}).Where("id = ?", frame.SkuID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return mapError(gorm.ErrRecordNotFound, fmt.Sprintf("sku %d", frame.SkuID))
		}
		return tx.Create(frame).Error
	})
}

func (r *GormRepository) GetFrame(ctx context.Context, id int64) (*entity.DbFrame, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var frame entity.DbFrame
	if err := r.db.WithContext(ctx).First(&frame, id).Error; err != nil {
		return nil, mapError(err, fmt.Sprintf("frame %d", id))
	}
	return &frame, nil
}

func (r *GormRepository) ListFramesForSku(ctx context.Context, skuID int64) ([]entity.DbFrame, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var frames []entity.DbFrame
	if err := r.db.WithContext(ctx).Where("sku_id = ?", skuID).Order("id ASC").Find(&frames).Error; err != nil {
		return nil, err
	}
	return frames, nil
}

// SetFrameStatus 校验迁移后以 compare-and-set 方式写入状态
func (r *GormRepository) SetFrameStatus(ctx context.Context, id int64, status entity.FrameStatus) error {
	if err := r.ready(); err != nil {
		return err
	}
	unlock := r.lockFrame(id)
	defer unlock()

	_, err := r.casFrameStatus(ctx, id, nil, status)
	return err
}

func (r *GormRepository) SetFrameStatusForGeneration(ctx context.Context, id, generationID int64, status entity.FrameStatus) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	unlock := r.lockFrame(id)
	defer unlock()

	return r.casFrameStatus(ctx, id, &generationID, status)
}

func (r *GormRepository) casFrameStatus(ctx context.Context, id int64, generationID *int64, status entity.FrameStatus) (bool, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var frame entity.DbFrame
		if err := r.db.WithContext(ctx).Select("id", "status", "active_generation_id").First(&frame, id).Error; err != nil {
			return false, mapError(err, fmt.Sprintf("frame %d", id))
		}
		if generationID != nil && (frame.ActiveGenerationID == nil || *frame.ActiveGenerationID != *generationID) {
			return false, nil
		}
		if err := entity.CheckFrameTransition(frame.Status, status); err != nil {
			return false, err
		}
		if frame.Status == status {
			return true, nil
		}

		query := r.db.WithContext(ctx).Model(&entity.DbFrame{}).Where("id = ? AND status = ?", id, frame.Status)
		if generationID != nil {
			query = query.Where("active_generation_id = ?", *generationID)
		}
		result := query.Update("status", status)
		if result.Error != nil {
			return false, result.Error
		}
		if result.RowsAffected > 0 {
			return true, nil
		}
	}
	return false, fmt.Errorf("frame %d: %w", id, errStaleWrite)
}

func (r *GormRepository) SetFrameMask(ctx context.Context, id int64, mask entity.MaskResult) error {
	if err := r.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(mask.Key) == "" {
		return fmt.Errorf("mask key is empty")
	}
	unlock := r.lockFrame(id)
	defer unlock()

	result := r.db.WithContext(ctx).Model(&entity.DbFrame{}).Where("id = ?", id).Updates(map[string]interface{}{
		"mask_key":      mask.Key,
		"mask_strategy": mask.Strategy,
		"mask_box":      entity.IntArray(mask.Box),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mapError(gorm.ErrRecordNotFound, fmt.Sprintf("frame %d", id))
	}
	return nil
}

// SetPendingParams 合并而非替换待用参数
func (r *GormRepository) SetPendingParams(ctx context.Context, id int64, overrides entity.JSONMap) (entity.JSONMap, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	unlock := r.lockFrame(id)
	defer unlock()

	var merged entity.JSONMap
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var frame entity.DbFrame
		if err := tx.Select("id", "pending_params").First(&frame, id).Error; err != nil {
			return mapError(err, fmt.Sprintf("frame %d", id))
		}
		merged = entity.MergePendingParams(frame.PendingParams, overrides)
		return tx.Model(&entity.DbFrame{}).Where("id = ?", id).Update("pending_params", merged).Error
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (r *GormRepository) UpdateFrame(ctx context.Context, id int64, updates entity.FrameUpdates) error {
	if err := r.ready(); err != nil {
		return err
	}
	if updates.IsEmpty() {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&entity.DbFrame{}).Where("id = ?", id).Updates(updates.ToMap())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mapError(gorm.ErrRecordNotFound, fmt.Sprintf("frame %d", id))
	}
	return nil
}

// DeleteFrame removes a frame with its generations, versions and favorites.
func (r *GormRepository) DeleteFrame(ctx context.Context, id int64) error {
	if err := r.ready(); err != nil {
		return err
	}
	unlock := r.lockFrame(id)
	defer unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entity.DbFrame{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return mapError(gorm.ErrRecordNotFound, fmt.Sprintf("frame %d", id))
		}
		return deleteFrameRows(tx, []int64{id})
	})
	if err == nil || errors.Is(err, entity.ErrNotFound) {
		r.forgetFrameLocks(id)
	}
	return err
}

func deleteFrameRows(tx *gorm.DB, frameIDs []int64) error {
	if len(frameIDs) == 0 {
		return nil
	}
	if err := tx.Where("frame_id IN ?", frameIDs).Delete(&entity.DbGeneration{}).Error; err != nil {
		return err
	}
	if err := tx.Where("frame_id IN ?", frameIDs).Delete(&entity.DbOutputVersion{}).Error; err != nil {
		return err
	}
	if err := tx.Where("frame_id IN ?", frameIDs).Delete(&entity.DbFavorite{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", frameIDs).Delete(&entity.DbFrame{}).Error
}

// SetFavorites replaces the favorite set of a frame. Every key must be one of
// the frame's outputs.
func (r *GormRepository) SetFavorites(ctx context.Context, frameID int64, keys []string) error {
	if err := r.ready(); err != nil {
		return err
	}
	keys = entity.DedupeKeys(keys)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var frame entity.DbFrame
		if err := tx.Select("id", "outputs").First(&frame, frameID).Error; err != nil {
			return mapError(err, fmt.Sprintf("frame %d", frameID))
		}
		for _, key := range keys {
			if !frame.Outputs.Contains(key) {
				return fmt.Errorf("favorite %q is not an output of frame %d: %w", key, frameID, entity.ErrNotFound)
			}
		}
		if err := tx.Where("frame_id = ?", frameID).Delete(&entity.DbFavorite{}).Error; err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		rows := make([]entity.DbFavorite, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, entity.DbFavorite{FrameID: frameID, Key: key})
		}
		return tx.Create(&rows).Error
	})
}

func (r *GormRepository) GetFavorites(ctx context.Context, frameID int64) ([]string, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.DbFrame{}).Where("id = ?", frameID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, mapError(gorm.ErrRecordNotFound, fmt.Sprintf("frame %d", frameID))
	}
	keys := []string{}
	err := r.db.WithContext(ctx).
		Model(&entity.DbFavorite{}).
		Where("frame_id = ?", frameID).
		Order("id ASC").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// AppendOutputVersion appends the next version and rewrites the flattened
// outputs in one transaction. The (frame_id, version_index) unique index
// rejects a concurrent writer that computed the same index; it retries.
func (r *GormRepository) AppendOutputVersion(ctx context.Context, frameID int64, keys []string) (*entity.DbOutputVersion, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	unlock := r.lockFrame(frameID)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var appended entity.DbOutputVersion
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var frame entity.DbFrame
			if err := tx.Select("id", "outputs").First(&frame, frameID).Error; err != nil {
				return mapError(err, fmt.Sprintf("frame %d", frameID))
			}
			var rows []entity.DbOutputVersion
			if err := tx.Where("frame_id = ?", frameID).Order("version_index ASC").Find(&rows).Error; err != nil {
				return err
			}

			plan, err := ledger.Append(entity.LedgerVersions(rows), frame.Outputs.ToSlice(), keys)
			if err != nil {
				return err
			}
			for _, v := range plan.Added {
				row := entity.DbOutputVersion{
					FrameID:      frameID,
					VersionIndex: v.Index,
					Keys:         entity.StringArray(v.Keys),
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				appended = row
			}
			return tx.Model(&entity.DbFrame{}).
				Where("id = ?", frameID).
				Update("outputs", entity.StringArray(plan.Flattened)).Error
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return &appended, nil
	}
	return nil, fmt.Errorf("append output version for frame %d: %w", frameID, lastErr)
}

func (r *GormRepository) ListOutputVersions(ctx context.Context, frameID int64) ([]entity.DbOutputVersion, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var rows []entity.DbOutputVersion
	if err := r.db.WithContext(ctx).Where("frame_id = ?", frameID).Order("version_index ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
