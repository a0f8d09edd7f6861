package entity

// SkuUpdates 款号更新字段
type SkuUpdates struct {
	Brand         *string
	HeadProfileID *int64
	IsDone        *bool
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u SkuUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Brand != nil {
		updates["brand"] = *u.Brand
	}
	if u.HeadProfileID != nil {
		updates["head_profile_id"] = *u.HeadProfileID
	}
	if u.IsDone != nil {
		updates["is_done"] = *u.IsDone
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u SkuUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// Apply 将更新写入内存中的记录
func (u SkuUpdates) Apply(sku *DbSku) {
	if u.Brand != nil {
		sku.Brand = *u.Brand
	}
	if u.HeadProfileID != nil {
		id := *u.HeadProfileID
		sku.HeadProfileID = &id
	}
	if u.IsDone != nil {
		sku.IsDone = *u.IsDone
	}
}

// HeadProfileUpdates 头像配置更新字段，Params 为增量合并
type HeadProfileUpdates struct {
	ModelVersion *string
	Params       *JSONMap
}

// IsEmpty 检查是否没有任何更新字段
func (u HeadProfileUpdates) IsEmpty() bool {
	return u.ModelVersion == nil && u.Params == nil
}

// FrameUpdates 帧的运营标记更新
type FrameUpdates struct {
	Accepted *bool
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u FrameUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Accepted != nil {
		updates["accepted"] = *u.Accepted
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u FrameUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// MergePendingParams 合并待用参数；overrides 中值为 nil 的键表示删除
func MergePendingParams(current, overrides JSONMap) JSONMap {
	merged := current.Merge(overrides)
	for k, v := range overrides {
		if v == nil {
			delete(merged, k)
		}
	}
	return merged
}

// DedupeKeys 去除空值与重复值，保持原有顺序
func DedupeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
