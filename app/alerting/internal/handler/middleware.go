package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/web"
	weberrors "github.com/lk2023060901/fleetalert/pkg/web/errors"
)

// Caller 读取调用方标识并写入日志上下文，缺失时拒绝
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderCallerID))
		if id == "" {
			web.AbortWithError(c, weberrors.CodeUnAuthorized, "missing "+HeaderCallerID+" header")
			return
		}
		c.Set(callerKey, id)
		c.Request = c.Request.WithContext(logger.WithCallerID(c.Request.Context(), id))
		c.Next()
	}
}
