// Package handler 告警引擎 HTTP 接口
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/scope"
	"github.com/lk2023060901/fleetalert/pkg/logger"
)

// HeaderCallerID 上游网关注入的调用方标识
const HeaderCallerID = "X-Caller-ID"

const callerKey = "caller_id"

// AlertService 调用方操作
type AlertService interface {
	List(ctx context.Context, callerID string, f model.Filter) ([]model.View, error)
	Counts(ctx context.Context, callerID string) (*scope.Counts, error)
	Get(ctx context.Context, callerID, id string) (model.View, error)
	Acknowledge(ctx context.Context, callerID, id string) (model.View, error)
	Snooze(ctx context.Context, callerID, id string, d time.Duration, reason string) (model.View, error)
	Resolve(ctx context.Context, callerID, id, reason string) (model.View, error)
}

// FactIntake 异步事实入口
type FactIntake interface {
	Submit(ctx context.Context, facts []*model.Fact) error
}

// Pinger 健康检查项
type Pinger func(ctx context.Context) error

// Handler 路由与处理函数
type Handler struct {
	svc    AlertService
	intake FactIntake
	checks map[string]Pinger
	logger logger.Logger
}

// New 创建 Handler，checks 为 /healthz 的检查项
func New(svc AlertService, intake FactIntake, checks map[string]Pinger, l logger.Logger) *Handler {
	return &Handler{svc: svc, intake: intake, checks: checks, logger: l.Named("handler")}
}

// Register 注册全部路由
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)

	v1 := r.Group("/api/v1")
	v1.POST("/facts", h.ingestFacts)

	alerts := v1.Group("/alerts", Caller())
	alerts.GET("", h.list)
	alerts.GET("/counts", h.counts)
	alerts.GET("/:id", h.get)
	alerts.POST("/:id/acknowledge", h.acknowledge)
	alerts.POST("/:id/snooze", h.snooze)
	alerts.POST("/:id/resolve", h.resolve)
}

func callerID(c *gin.Context) string {
	return c.GetString(callerKey)
}
