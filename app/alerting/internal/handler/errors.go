package handler

import (
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/access"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dao"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ingest"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/lifecycle"
	"github.com/lk2023060901/fleetalert/pkg/web"
	weberrors "github.com/lk2023060901/fleetalert/pkg/web/errors"
)

// writeError 按错误类别映射响应码
func (h *Handler) writeError(c *gin.Context, err error) {
	if re, ok := lifecycle.AsRejection(err); ok {
		code := weberrors.CodeRejected
		if re.Code == lifecycle.CodeInvalidTransition || re.Code == lifecycle.CodeTerminalState {
			code = weberrors.CodeConflict
		}
		web.ErrorWithReason(c, code, string(re.Code), re.Message)
		return
	}

	switch {
	case errors.Is(err, dao.ErrNotFound):
		web.Error(c, weberrors.CodeNotFound, "alert not found")
	case errors.Is(err, dao.ErrVersionConflict):
		web.ErrorWithReason(c, weberrors.CodeConflict, "version_conflict", "alert was modified concurrently, re-read and retry")
	case errors.Is(err, access.ErrUnknownCaller), errors.Is(err, access.ErrReadOnly):
		web.Error(c, weberrors.CodeForbidden, err.Error())
	case errors.Is(err, ingest.ErrMalformedPayload):
		web.Error(c, weberrors.CodeInvalidParams, err.Error())
	case errors.Is(err, ingest.ErrOverloaded), errors.Is(err, ingest.ErrClosed):
		c.Header("Retry-After", "1")
		web.Error(c, weberrors.CodeUnavailable, err.Error())
	default:
		h.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		web.Error(c, weberrors.CodeInternalError, "internal error")
	}
}
