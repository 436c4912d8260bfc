package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	weberrors "github.com/lk2023060901/fleetalert/pkg/web/errors"
)

// Response 统一响应结构
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"` // 机器可读的拒绝原因
	Data      any    `json:"data"`
	RequestID string `json:"request_id,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:      weberrors.CodeOK,
		Message:   "ok",
		Data:      data,
		RequestID: logger.RequestIDFrom(c.Request.Context()),
	})
}

// Error 错误响应，HTTP 状态由业务码推导
func Error(c *gin.Context, code int, message string) {
	ErrorWithReason(c, code, "", message)
}

// ErrorWithReason 带原因码的错误响应
func ErrorWithReason(c *gin.Context, code int, reason, message string) {
	c.JSON(weberrors.CodeToStatus(code), Response{
		Code:      code,
		Message:   message,
		Reason:    reason,
		RequestID: logger.RequestIDFrom(c.Request.Context()),
	})
}

// AbortWithError 中断并返回错误
func AbortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(weberrors.CodeToStatus(code), Response{
		Code:      code,
		Message:   message,
		RequestID: logger.RequestIDFrom(c.Request.Context()),
	})
}
