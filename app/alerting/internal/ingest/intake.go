package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/util/conc"
)

// IntakeConfig HTTP 投递队列配置
type IntakeConfig struct {
	Workers        int           `mapstructure:"workers"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
}

// DefaultIntakeConfig 默认配置
func DefaultIntakeConfig() *IntakeConfig {
	return &IntakeConfig{Workers: 32, ProcessTimeout: 30 * time.Second, DrainTimeout: 10 * time.Second}
}

// Intake 异步处理 HTTP 投递的事实，提交即返回，不阻塞调用方
type Intake struct {
	cfg    *IntakeConfig
	proc   Processor
	pool   *conc.Pool[struct{}]
	wg     sync.WaitGroup
	closed atomic.Bool
	logger logger.Logger
}

// NewIntake 创建投递队列
func NewIntake(cfg *IntakeConfig, proc Processor, l logger.Logger) *Intake {
	def := DefaultIntakeConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = def.ProcessTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	return &Intake{
		cfg:    cfg,
		proc:   proc,
		pool:   conc.NewPool[struct{}](cfg.Workers, conc.WithNonBlocking()),
		logger: l.Named("ingest.http"),
	}
}

// Submit 入队一批事实，池满时返回 ErrOverloaded
func (in *Intake) Submit(ctx context.Context, facts []*model.Fact) error {
	if in.closed.Load() {
		return ErrClosed
	}
	now := time.Now()
	for _, f := range facts {
		if f.ObservedAt.IsZero() {
			f.ObservedAt = now
		}
	}

	in.wg.Add(1)
	bg := context.WithoutCancel(ctx)
	fut := in.pool.Submit(func() (struct{}, error) {
		defer in.wg.Done()
		pctx, cancel := context.WithTimeout(bg, in.cfg.ProcessTimeout)
		defer cancel()
		if _, err := in.proc.ProcessFacts(pctx, facts); err != nil {
			in.logger.ErrorContext(pctx, "fact batch failed", "facts", len(facts), "error", err)
		}
		return struct{}{}, nil
	})
	select {
	case <-fut.Inner():
		if err := fut.Err(); errors.Is(err, conc.ErrPoolOverload) || errors.Is(err, conc.ErrPoolClosed) {
			in.wg.Done()
			return errors.Wrapf(ErrOverloaded, "%d facts", len(facts))
		}
	default:
	}
	return nil
}

// Close 等待排队中的批次处理完毕，超时后放弃等待
func (in *Intake) Close() error {
	if !in.closed.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		in.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(in.cfg.DrainTimeout):
		in.logger.Warn("intake drain timed out")
	}
	in.pool.Release()
	return nil
}
