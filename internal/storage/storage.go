package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"facechanger/internal/config"
)

const (
	// TypeLocal 表示本地文件系统存储。
	TypeLocal = "local"
	// TypeS3 表示 Amazon S3 或兼容的存储后端。
	TypeS3 = "s3"
	// TypeOSS 表示阿里云 OSS 存储。
	TypeOSS = "oss"
	// TypeCOS 表示腾讯云 COS 存储。
	TypeCOS = "cos"
	// TypeR2 表示 Cloudflare R2 存储。
	TypeR2 = "r2"
)

// ErrObjectNotFound 表示对象不存在。
var ErrObjectNotFound = errors.New("storage: object not found")

// Storage 是对象存储的抽象。调用方始终使用规范 key（不含存储前缀、域名或签名参数）。
type Storage interface {
	// Put 写入对象并返回规范 key。
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get 读取对象内容。
	Get(ctx context.Context, key string) ([]byte, error)
	// ResolveReadableURL 返回外部服务可读取的地址（公开地址或临时签名地址）。
	ResolveReadableURL(ctx context.Context, key string) (string, error)
	// CanonicalKey 将公开地址、签名地址或 key 还原为规范 key；外部地址返回 false。
	CanonicalKey(ref string) (string, bool)
}

// LocalBaseDirProvider 由暴露可通过 HTTP 直接提供服务的本地目录的存储驱动实现。
type LocalBaseDirProvider interface {
	LocalBaseDir() string
}

// NewStorage 根据配置实例化存储后端。
func NewStorage(cfg config.Config) (Storage, error) {
	typeName := strings.ToLower(strings.TrimSpace(cfg.StorageType))
	switch typeName {
	case "", TypeLocal:
		return NewLocalStorage(cfg.StorageLocalDir, cfg.StoragePublicBaseURL)
	case TypeS3:
		return NewS3Storage(cfg)
	case TypeOSS:
		return NewOSSStorage(cfg)
	case TypeCOS:
		return NewCOSStorage(cfg)
	case TypeR2:
		return NewR2Storage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}
