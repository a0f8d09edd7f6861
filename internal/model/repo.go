package model

import (
	"context"

	"facechanger/internal/entity"
)

var (
	ErrNotFound           = entity.ErrNotFound
	ErrDuplicate          = entity.ErrDuplicate
	ErrInvalidTransition  = entity.ErrInvalidTransition
	ErrTerminalGeneration = entity.ErrTerminalGeneration
)

// Repository 定义记录存储接口，所有方法须支持多个 worker 并发调用
type Repository interface {
	// 头像配置
	CreateHeadProfile(ctx context.Context, profile *entity.DbHeadProfile) error
	GetHeadProfile(ctx context.Context, id int64) (*entity.DbHeadProfile, error)
	GetHeadProfileByName(ctx context.Context, name string) (*entity.DbHeadProfile, error)
	ListHeadProfiles(ctx context.Context) ([]entity.DbHeadProfile, error)
	UpdateHeadProfile(ctx context.Context, id int64, updates entity.HeadProfileUpdates) error

	// 款号
	CreateSku(ctx context.Context, sku *entity.DbSku) error
	GetSku(ctx context.Context, id int64) (*entity.DbSku, error)
	GetSkuByCode(ctx context.Context, code string) (*entity.DbSku, error)
	ListSkus(ctx context.Context, params *entity.SkuQuery) ([]entity.DbSku, *entity.Meta, error)
	UpdateSku(ctx context.Context, id int64, updates entity.SkuUpdates) error
	DeleteSku(ctx context.Context, id int64) error

	// 看板
	ListBatches(ctx context.Context, limit int) ([]entity.BatchSummary, error)
	ListSkuProgress(ctx context.Context, params *entity.SkuQuery) ([]entity.SkuProgress, error)
	ListBrands(ctx context.Context) ([]string, error)

	// 帧
	CreateFrame(ctx context.Context, frame *entity.DbFrame) error
	GetFrame(ctx context.Context, id int64) (*entity.DbFrame, error)
	ListFramesForSku(ctx context.Context, skuID int64) ([]entity.DbFrame, error)
	SetFrameStatus(ctx context.Context, id int64, status entity.FrameStatus) error
	// SetFrameStatusForGeneration 仅当 generationID 仍是帧的当前生成时写入状态
	SetFrameStatusForGeneration(ctx context.Context, id, generationID int64, status entity.FrameStatus) (bool, error)
	SetFrameMask(ctx context.Context, id int64, mask entity.MaskResult) error
	// SetPendingParams 将 overrides 合并进帧的待用参数并返回合并结果
	SetPendingParams(ctx context.Context, id int64, overrides entity.JSONMap) (entity.JSONMap, error)
	UpdateFrame(ctx context.Context, id int64, updates entity.FrameUpdates) error
	DeleteFrame(ctx context.Context, id int64) error
	SetFavorites(ctx context.Context, frameID int64, keys []string) error
	GetFavorites(ctx context.Context, frameID int64) ([]string, error)

	// 生成
	// RegisterGeneration 创建 PENDING 生成并将其设为帧的当前生成
	RegisterGeneration(ctx context.Context, generation *entity.DbGeneration) error
	GetGeneration(ctx context.Context, id int64) (*entity.DbGeneration, error)
	ListGenerations(ctx context.Context, frameID int64) ([]entity.DbGeneration, error)
	SaveGenerationExternalID(ctx context.Context, id int64, externalID string) error
	SetGenerationStatus(ctx context.Context, id int64, status entity.GenerationStatus, kind entity.ErrorKind, errText string) error
	SetGenerationOutputs(ctx context.Context, id int64, keys []string) error

	// 输出版本
	AppendOutputVersion(ctx context.Context, frameID int64, keys []string) (*entity.DbOutputVersion, error)
	ListOutputVersions(ctx context.Context, frameID int64) ([]entity.DbOutputVersion, error)
}
