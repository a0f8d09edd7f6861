package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"facechanger/internal/auth"
	"facechanger/internal/config"
	"facechanger/internal/entity"
	"facechanger/internal/model"
	"facechanger/internal/service"
	"facechanger/internal/storage"
)

// Dispatcher 将帧任务投递到工作池
type Dispatcher interface {
	EnqueueFrame(ctx context.Context, frameID int64, opts service.ProcessOptions) error
	EnqueueSku(ctx context.Context, skuID int64, opts service.ProcessOptions) (int, error)
	EnqueueRedo(ctx context.Context, frameID int64, overrides entity.JSONMap, opts service.ProcessOptions) error
}

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg               config.Config
	repo              model.Repository
	storage           storage.Storage
	storagePublicBase string
	authManager       *auth.Manager
	dispatcher        Dispatcher
	now               func() time.Time
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage, dispatcher Dispatcher) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	return &HTTPHandler{
		cfg:               cfg,
		repo:              repo,
		storage:           store,
		storagePublicBase: normalisePublicBase(cfg.StoragePublicBaseURL),
		authManager:       authManager,
		dispatcher:        dispatcher,
		now:               time.Now,
	}, nil
}

// RegisterRoutes 注册 /api 下的全部路由
func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	apiGroup := r.Group("/api")

	protected := apiGroup.Group("")
	protected.Use(h.AuthMiddleware())
	protected.GET("/auth/me", h.Me)

	protected.GET("/heads", h.ListHeadProfiles)

	protected.GET("/skus", h.ListSkus)
	protected.POST("/skus", h.CreateSku)
	protected.GET("/skus/:id", h.GetSku)
	protected.PATCH("/skus/:id", h.UpdateSku)
	protected.POST("/skus/:id/frames", h.UploadFrames)
	protected.POST("/skus/:id/process", h.ProcessSku)

	protected.GET("/frames/:id", h.GetFrame)
	protected.PATCH("/frames/:id", h.UpdateFrame)
	protected.POST("/frames/:id/process", h.ProcessFrame)
	protected.POST("/frames/:id/redo", h.RedoFrame)
	protected.POST("/frames/:id/mask", h.UploadMask)
	protected.GET("/frames/:id/favorites", h.GetFavorites)
	protected.PUT("/frames/:id/favorites", h.SetFavorites)
	protected.GET("/frames/:id/generations", h.ListGenerations)
	protected.GET("/frames/:id/versions", h.ListOutputVersions)

	dashboard := protected.Group("/dashboard")
	dashboard.GET("/batches", h.ListBatches)
	dashboard.GET("/skus", h.ListSkuProgress)
	dashboard.GET("/brands", h.ListBrands)

	admin := protected.Group("")
	admin.Use(h.RequireAdmin())
	admin.POST("/heads", h.CreateHeadProfile)
	admin.PATCH("/heads/:id", h.UpdateHeadProfile)
	admin.DELETE("/skus/:id", h.DeleteSku)
	admin.DELETE("/frames/:id", h.DeleteFrame)
}

// Me 返回当前令牌对应的操作员
func (h *HTTPHandler) Me(c *gin.Context) {
	operator := CurrentOperator(c)
	if operator == nil {
		Unauthorized(c, "authentication required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"operator": operator.Name, "role": operator.Role})
}

// normalisePublicBase 规范化公共 URL 基础路径
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}
