package sql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"facechanger/internal/entity"
)

// RegisterGeneration inserts a PENDING generation and makes it the frame's
// active generation.
func (r *GormRepository) RegisterGeneration(ctx context.Context, generation *entity.DbGeneration) error {
	if err := r.ready(); err != nil {
		return err
	}
	if generation == nil {
		return fmt.Errorf("generation is nil")
	}
	unlock := r.lockFrame(generation.FrameID)
	defer unlock()

	generation.Status = entity.GenerationStatusPending
	generation.CompletedAt = nil
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entity.DbFrame{}).Where("id = ?", generation.FrameID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return mapError(gorm.ErrRecordNotFound, fmt.Sprintf("frame %d", generation.FrameID))
		}
		if err := tx.Create(generation).Error; err != nil {
			return err
		}
		return tx.Model(&entity.DbFrame{}).
			Where("id = ?", generation.FrameID).
			Update("active_generation_id", generation.ID).Error
	})
}

func (r *GormRepository) GetGeneration(ctx context.Context, id int64) (*entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var generation entity.DbGeneration
	if err := r.db.WithContext(ctx).First(&generation, id).Error; err != nil {
		return nil, mapError(err, fmt.Sprintf("generation %d", id))
	}
	return &generation, nil
}

func (r *GormRepository) ListGenerations(ctx context.Context, frameID int64) ([]entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var generations []entity.DbGeneration
	if err := r.db.WithContext(ctx).Where("frame_id = ?", frameID).Order("id ASC").Find(&generations).Error; err != nil {
		return nil, err
	}
	return generations, nil
}

// updateOpenGeneration 仅更新尚未到达终态的生成
func (r *GormRepository) updateOpenGeneration(ctx context.Context, id int64, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&entity.DbGeneration{}).
		Where("id = ? AND status NOT IN ?", id, []entity.GenerationStatus{entity.GenerationStatusCompleted, entity.GenerationStatusFailed}).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	current, err := r.GetGeneration(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: generation %d is %s", entity.ErrTerminalGeneration, id, current.Status)
}

func (r *GormRepository) SaveGenerationExternalID(ctx context.Context, id int64, externalID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.updateOpenGeneration(ctx, id, map[string]interface{}{"external_id": externalID})
}

func (r *GormRepository) SetGenerationOutputs(ctx context.Context, id int64, keys []string) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.updateOpenGeneration(ctx, id, map[string]interface{}{"output_keys": entity.StringArray(keys)})
}

// SetGenerationStatus 按迁移表推进状态，终态写入完成时间
func (r *GormRepository) SetGenerationStatus(ctx context.Context, id int64, status entity.GenerationStatus, kind entity.ErrorKind, errText string) error {
	if err := r.ready(); err != nil {
		return err
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		current, err := r.GetGeneration(ctx, id)
		if err != nil {
			return err
		}
		if err := entity.CheckGenerationTransition(current.Status, status); err != nil {
			return err
		}

		values := map[string]interface{}{
			"status":     status,
			"error_kind": kind,
			"error":      errText,
		}
		if status.IsTerminal() {
			values["completed_at"] = time.Now().UTC()
		}
		result := r.db.WithContext(ctx).
			Model(&entity.DbGeneration{}).
			Where("id = ? AND status = ?", id, current.Status).
			Updates(values)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
	}
	return fmt.Errorf("generation %d: %w", id, errStaleWrite)
}
