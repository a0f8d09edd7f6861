package sql

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"facechanger/internal/entity"
)

// CreateHeadProfile inserts a new head profile.
func (r *GormRepository) CreateHeadProfile(ctx context.Context, profile *entity.DbHeadProfile) error {
	if err := r.ready(); err != nil {
		return err
	}
	if profile == nil {
		return fmt.Errorf("head profile is nil")
	}
	return mapError(r.db.WithContext(ctx).Create(profile).Error, "head profile "+profile.Name)
}

func (r *GormRepository) GetHeadProfile(ctx context.Context, id int64) (*entity.DbHeadProfile, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var profile entity.DbHeadProfile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		return nil, mapError(err, fmt.Sprintf("head profile %d", id))
	}
	return &profile, nil
}

func (r *GormRepository) GetHeadProfileByName(ctx context.Context, name string) (*entity.DbHeadProfile, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("head profile name is empty")
	}
	var profile entity.DbHeadProfile
	if err := r.db.WithContext(ctx).Where("name = ?", trimmed).First(&profile).Error; err != nil {
		return nil, mapError(err, "head profile "+trimmed)
	}
	return &profile, nil
}

func (r *GormRepository) ListHeadProfiles(ctx context.Context) ([]entity.DbHeadProfile, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var profiles []entity.DbHeadProfile
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// UpdateHeadProfile 更新模型版本，参数做增量合并
func (r *GormRepository) UpdateHeadProfile(ctx context.Context, id int64, updates entity.HeadProfileUpdates) error {
	if err := r.ready(); err != nil {
		return err
	}
	if updates.IsEmpty() {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile entity.DbHeadProfile
		if err := tx.First(&profile, id).Error; err != nil {
			return mapError(err, fmt.Sprintf("head profile %d", id))
		}
		values := make(map[string]interface{})
		if updates.ModelVersion != nil {
			values["model_version"] = *updates.ModelVersion
		}
		if updates.Params != nil {
			values["params"] = profile.Params.Merge(*updates.Params)
		}
		return tx.Model(&entity.DbHeadProfile{}).Where("id = ?", id).Updates(values).Error
	})
}
