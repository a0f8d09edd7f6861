package entity

import (
	"time"
)

// DbHeadProfile 头像模特配置
type DbHeadProfile struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"size:128;not null;uniqueIndex" json:"name"`
	TriggerToken   string    `gorm:"size:64;not null" json:"trigger_token"`
	PromptTemplate string    `gorm:"size:512;not null" json:"prompt_template"`
	ModelVersion   string    `gorm:"size:128" json:"model_version"`
	Params         JSONMap   `gorm:"type:json" json:"params"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DbHeadProfile) TableName() string {
	return "head_profiles"
}

// DbSku 商品款号，拥有若干帧
type DbSku struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string    `gorm:"size:128;not null;uniqueIndex" json:"code"`
	Brand         string    `gorm:"size:128;index" json:"brand"`
	HeadProfileID *int64    `gorm:"index" json:"head_profile_id,omitempty"`
	IsDone        bool      `gorm:"not null;default:false" json:"is_done"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DbSku) TableName() string {
	return "skus"
}

// DbFrame 一张上传的商品图及其处理状态
type DbFrame struct {
	ID                 int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	SkuID              int64       `gorm:"not null;index" json:"sku_id"`
	OriginalKey        string      `gorm:"size:512;not null" json:"original_key"`
	MaskKey            string      `gorm:"size:512" json:"mask_key"`
	MaskStrategy       string      `gorm:"size:32" json:"mask_strategy"`
	MaskBox            IntArray    `gorm:"type:json" json:"mask_box"`
	Status             FrameStatus `gorm:"size:16;not null;index;default:NEW" json:"status"`
	PendingParams      JSONMap     `gorm:"type:json" json:"pending_params"`
	Outputs            StringArray `gorm:"type:json" json:"outputs"`
	ActiveGenerationID *int64      `json:"active_generation_id,omitempty"`
	Accepted           bool        `gorm:"not null;default:false" json:"accepted"`
	CreatedAt          time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DbFrame) TableName() string {
	return "frames"
}

// HasMask 帧是否已有掩码
func (f DbFrame) HasMask() bool {
	return f.MaskKey != ""
}

// DbGeneration 一次渲染尝试，达到终态后不再修改
type DbGeneration struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	FrameID     int64            `gorm:"not null;index" json:"frame_id"`
	Status      GenerationStatus `gorm:"size:16;not null;default:PENDING" json:"status"`
	ExternalID  string           `gorm:"size:128;index" json:"external_id"`
	Params      JSONMap          `gorm:"type:json" json:"params"`
	OutputKeys  StringArray      `gorm:"type:json" json:"output_keys"`
	ErrorKind   ErrorKind        `gorm:"size:32" json:"error_kind,omitempty"`
	Error       string           `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func (DbGeneration) TableName() string {
	return "generations"
}

// DbOutputVersion 一批完成的输出，版本号从 1 开始连续递增
type DbOutputVersion struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	FrameID      int64       `gorm:"not null;uniqueIndex:idx_frame_version" json:"frame_id"`
	VersionIndex int         `gorm:"not null;uniqueIndex:idx_frame_version" json:"version_index"`
	Keys         StringArray `gorm:"type:json" json:"keys"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (DbOutputVersion) TableName() string {
	return "frame_output_versions"
}

// DbFavorite 收藏的输出，(frame_id, key) 唯一
type DbFavorite struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FrameID   int64     `gorm:"not null;uniqueIndex:idx_frame_favorite" json:"frame_id"`
	Key       string    `gorm:"size:512;not null;uniqueIndex:idx_frame_favorite" json:"key"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (DbFavorite) TableName() string {
	return "frame_favorites"
}

// MaskResult 掩码生成结果及其审计元数据
type MaskResult struct {
	Key      string `json:"key"`
	Strategy string `json:"strategy"`
	Box      []int  `json:"box"`
}

// BatchSummary 按创建日期聚合的批次统计
type BatchSummary struct {
	Date       string `json:"date"`
	Total      int    `json:"total"`
	Done       int    `json:"done"`
	Failed     int    `json:"failed"`
	InProgress int    `json:"in_progress"`
}
