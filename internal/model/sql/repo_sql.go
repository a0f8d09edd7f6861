package sql

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"facechanger/internal/entity"
)

// GormRepository implements Repository using GORM
type GormRepository struct {
	db *gorm.DB

	// frameLocks 串行化同一进程内对同一帧的写入；跨进程由唯一索引与条件更新兜底
	frameLocks sync.Map
}

// NewGormRepository creates a new repository instance
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// GormConfig 返回统一的 GORM 配置：UTC 时间、翻译唯一键错误
func GormConfig() *gorm.Config {
	gormLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second * 5,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return &gorm.Config{
		Logger:                                   gormLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	}
}

// Migrate 迁移数据库表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.DbHeadProfile{},
		&entity.DbSku{},
		&entity.DbFrame{},
		&entity.DbGeneration{},
		&entity.DbOutputVersion{},
		&entity.DbFavorite{},
	)
}

func (r *GormRepository) ready() error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	return nil
}

func (r *GormRepository) lockFrame(id int64) func() {
	v, _ := r.frameLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// forgetFrameLocks 在帧删除后移除其锁条目；之后对该帧的写入都会得到 ErrNotFound
func (r *GormRepository) forgetFrameLocks(ids ...int64) {
	for _, id := range ids {
		r.frameLocks.Delete(id)
	}
}

// calculatePagination calculates pagination metrics
func (r *GormRepository) calculatePagination(totalCount int64, page, pageSize int) *entity.Meta {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}

	return &entity.Meta{
		Total:    totalCount,
		Page:     int64(page),
		PageSize: int64(pageSize),
	}
}

// mapError 将 GORM 错误映射为仓库哨兵错误
func mapError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, entity.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, entity.ErrDuplicate)
	default:
		return err
	}
}

// dayRange 将 YYYY-MM-DD 转换为 UTC 的 [start, end)
func dayRange(date string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(entity.BatchDateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}
