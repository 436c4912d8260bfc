package web

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	weberrors "github.com/lk2023060901/fleetalert/pkg/web/errors"
)

// BindAndValidate 绑定请求参数并校验，失败时已写出响应
func BindAndValidate(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			Error(c, weberrors.CodeInvalidParams, errs.Error())
			return false
		}
		Error(c, weberrors.CodeInvalidParams, "invalid request parameters: "+err.Error())
		return false
	}
	return true
}

// GetQuery 获取查询参数，带默认值
func GetQuery(c *gin.Context, key, defaultValue string) string {
	if val := c.Query(key); val != "" {
		return val
	}
	return defaultValue
}

// GetQueryInt 获取整数查询参数，缺失或非法时返回默认值
func GetQueryInt(c *gin.Context, key string, defaultValue int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return defaultValue
	}
	return n
}
