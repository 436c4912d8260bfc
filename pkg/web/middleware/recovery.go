package middleware

import (
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/pkg/logger"
)

// PanicReporter 上报 panic，通常是 sentry 客户端
type PanicReporter func(recovered interface{})

// Recovery 异常恢复中间件
func Recovery(l logger.Logger, reporters ...PanicReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			request, _ := httputil.DumpRequest(c.Request, false)
			if err, ok := rec.(error); ok && isBrokenPipe(err) {
				l.Warn("http broken pipe", "error", err, "request", string(request))
				_ = c.Error(err)
				c.Abort()
				return
			}

			l.ErrorContext(c.Request.Context(), "http recovery from panic",
				"error", rec,
				"request", string(request),
			)
			for _, report := range reporters {
				report(rec)
			}
			c.AbortWithStatus(http.StatusInternalServerError)
		}()
		c.Next()
	}
}

func isBrokenPipe(err error) bool {
	var ne *net.OpError
	if !errors.As(err, &ne) {
		return false
	}
	var se *os.SyscallError
	if !errors.As(ne.Err, &se) {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
