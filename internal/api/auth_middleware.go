package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facechanger/internal/auth"
)

const (
	currentOperatorContextKey = "current-operator"
)

// RequestOperator 存储请求上下文中的认证操作员信息
type RequestOperator struct {
	Name string
	Role string
}

// IsAdmin 判断操作员是否具有管理员权限
func (o *RequestOperator) IsAdmin() bool {
	if o == nil {
		return false
	}
	return o.Role == auth.RoleAdmin
}

// AuthMiddleware JWT 认证中间件；令牌由 facectl token 签发，不查库
func (h *HTTPHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "缺少授权头",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "无效的授权头格式",
			})
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "缺少 Bearer Token",
			})
			return
		}

		claims, err := h.authManager.ParseToken(tokenString)
		if err != nil {
			logrus.WithError(err).Warn("failed to parse jwt token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeSessionExpired,
				Message: "Token 无效或已过期",
			})
			return
		}

		c.Set(currentOperatorContextKey, &RequestOperator{
			Name: claims.Operator,
			Role: claims.Role,
		})
		c.Next()
	}
}

// RequireAdmin 管理员权限守卫中间件
func (h *HTTPHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		operator := CurrentOperator(c)
		if operator == nil || !operator.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, APIError{
				Code:    ErrCodeForbidden,
				Message: "需要管理员权限",
			})
			return
		}
		c.Next()
	}
}

// CurrentOperator 从上下文获取当前认证操作员
func CurrentOperator(c *gin.Context) *RequestOperator {
	value, exists := c.Get(currentOperatorContextKey)
	if !exists {
		return nil
	}
	operator, ok := value.(*RequestOperator)
	if !ok {
		return nil
	}
	return operator
}

func operatorName(c *gin.Context) string {
	if operator := CurrentOperator(c); operator != nil {
		return operator.Name
	}
	return ""
}
