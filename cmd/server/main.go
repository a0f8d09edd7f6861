package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facechanger/internal/api"
	"facechanger/internal/config"
	"facechanger/internal/inference"
	"facechanger/internal/model"
	"facechanger/internal/service"
	"facechanger/internal/storage"
	"facechanger/internal/worker"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}
	if _, err := model.SeedDefaultHeadProfile(ctx, repo, cfg); err != nil {
		logrus.WithError(err).Warn("failed to seed default head profile")
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	client, err := inference.NewClient(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise inference client")
		return
	}
	locator, err := service.BuildLocator(cfg, client)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise head locator")
		return
	}
	orchestrator, err := service.NewOrchestrator(repo, store, client, locator, service.OptionsFromConfig(cfg))
	if err != nil {
		logrus.WithError(err).Error("failed to initialise orchestrator")
		return
	}

	queue, err := worker.NewQueue(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise job queue")
		return
	}
	defer queue.Close()

	pool, err := worker.NewPool(queue, orchestrator, cfg.WorkerCount)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise worker pool")
		return
	}
	poolDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx) }()

	dispatcher := worker.NewDispatcher(repo, queue, orchestrator)
	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, dispatcher)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "workers": pool.Stats()})
	})
	httpHandler.RegisterRoutes(r)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logrus.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  900 * time.Second,
		WriteTimeout: 900 * time.Second,
		IdleTimeout:  1200 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("服务器启动失败")
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("服务器关闭中")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http shutdown incomplete")
	}
	// ctx 取消后工作池停止取任务，进行中的生成按 internal 失败记录
	select {
	case err := <-poolDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Warn("worker pool stopped with error")
		}
	case <-shutdownCtx.Done():
		logrus.Warn("worker pool did not drain before shutdown deadline")
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
