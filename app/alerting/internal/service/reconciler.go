package service

import (
	"context"
	"time"

	"github.com/lk2023060901/fleetalert/app/alerting/internal/lifecycle"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/scheduler"
)

// ReconcileJobName 定时补偿任务名
const ReconcileJobName = "alert_reconcile"

// ReconcilerConfig 补偿任务配置
type ReconcilerConfig struct {
	Spec    string        `mapstructure:"spec"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultReconcilerConfig 默认每分钟一次
func DefaultReconcilerConfig() *ReconcilerConfig {
	return &ReconcilerConfig{Spec: "@every 1m", Timeout: 30 * time.Second}
}

// Reconciler 定期为非终态告警补登记丢失的定时器，实现 scheduler.Job
type Reconciler struct {
	cfg     *ReconcilerConfig
	manager *lifecycle.Manager
	logger  logger.Logger
}

var _ scheduler.Job = (*Reconciler)(nil)

// NewReconciler 创建补偿任务
func NewReconciler(cfg *ReconcilerConfig, m *lifecycle.Manager, l logger.Logger) *Reconciler {
	def := DefaultReconcilerConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.Spec == "" {
		cfg.Spec = def.Spec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Reconciler{cfg: cfg, manager: m, logger: l.Named("reconciler")}
}

func (r *Reconciler) Name() string { return ReconcileJobName }

func (r *Reconciler) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	stats, err := r.manager.Reconcile(ctx)
	if err != nil {
		return err
	}
	r.logger.Debug("reconcile finished", "scanned", stats.Scanned, "restored", stats.Restored)
	return nil
}

// Register 注册到调度器并立即执行一次启动补偿
func (r *Reconciler) Register(s *scheduler.Scheduler) error {
	if _, err := s.AddJob(ReconcileJobName, r.cfg.Spec, r); err != nil {
		return err
	}
	return s.RunNow(ReconcileJobName)
}
