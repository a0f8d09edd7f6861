package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facechanger/internal/model"
	"facechanger/internal/service"
	"facechanger/internal/worker"
)

// 错误码定义
const (
	// 通用错误码 (1xxx)
	ErrCodeInvalidRequest     = "ERR_INVALID_REQUEST"
	ErrCodeUnauthorized       = "ERR_UNAUTHORIZED"
	ErrCodeForbidden          = "ERR_FORBIDDEN"
	ErrCodeNotFound           = "ERR_NOT_FOUND"
	ErrCodeInternalError      = "ERR_INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"

	// 认证错误码 (2xxx)
	ErrCodeSessionExpired = "ERR_SESSION_EXPIRED"

	// 资源错误码 (3xxx)
	ErrCodeSkuNotFound         = "ERR_SKU_NOT_FOUND"
	ErrCodeFrameNotFound       = "ERR_FRAME_NOT_FOUND"
	ErrCodeHeadProfileNotFound = "ERR_HEAD_PROFILE_NOT_FOUND"
	ErrCodeConflict            = "ERR_CONFLICT"

	// 业务逻辑错误码 (4xxx)
	ErrCodeMissingField      = "ERR_MISSING_FIELD"
	ErrCodeMissingImage      = "ERR_MISSING_IMAGE"
	ErrCodeInvalidTransition = "ERR_INVALID_TRANSITION"
	ErrCodeUnsupportedMedia  = "ERR_UNSUPPORTED_MEDIA"
	ErrCodeQueueFull         = "ERR_QUEUE_FULL"
)

// APIError 统一的 API 错误响应结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse 返回统一格式的错误响应
func ErrorResponse(c *gin.Context, status int, code string, message string) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
	})
}

// ErrorResponseWithDetails 返回带详情的错误响应
func ErrorResponseWithDetails(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// 常用错误响应快捷函数

// BadRequest 400 错误请求
func BadRequest(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusBadRequest, code, message)
}

// Unauthorized 401 未授权
func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden 403 禁止访问
func Forbidden(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// NotFound 404 资源不存在
func NotFound(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusNotFound, code, message)
}

// InternalError 500 服务器内部错误
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ServiceUnavailable 503 服务不可用
func ServiceUnavailable(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// MissingField 缺少必填字段
func MissingField(c *gin.Context, field string) {
	ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeMissingField, field+" is required", gin.H{"field": field})
}

// InvalidPayload 无效的请求体
func InvalidPayload(c *gin.Context) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request payload")
}

// RespondError 将领域错误映射为 HTTP 状态码与错误码
func RespondError(c *gin.Context, err error, notFoundCode string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		if notFoundCode == "" {
			notFoundCode = ErrCodeNotFound
		}
		NotFound(c, notFoundCode, err.Error())
	case errors.Is(err, model.ErrDuplicate):
		ErrorResponse(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrTerminalGeneration):
		ErrorResponse(c, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, service.ErrMissingImage):
		BadRequest(c, ErrCodeMissingImage, err.Error())
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrQueueClosed):
		ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeQueueFull, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		ServiceUnavailable(c, "request timed out")
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request_failed")
		InternalError(c, "internal error")
	}
}
