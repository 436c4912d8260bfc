package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/metrics"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/util/conc"
)

// Handler 处理到期定时器，返回错误时定时器会在 RetryDelay 后重新登记
type Handler func(ctx context.Context, t Timer) error

// Locker 多副本部署时用于选出本轮的轮询者
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// PollerConfig 轮询配置
type PollerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	BatchSize  int           `mapstructure:"batch_size"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// 单个定时器处理超时
	HandleTimeout time.Duration `mapstructure:"handle_timeout"`
}

// DefaultPollerConfig 默认配置
func DefaultPollerConfig() *PollerConfig {
	return &PollerConfig{
		Interval:      time.Second,
		BatchSize:     100,
		RetryDelay:    30 * time.Second,
		HandleTimeout: 10 * time.Second,
	}
}

// PollerOption 轮询器选项
type PollerOption func(*Poller)

// WithClock 替换时钟，测试中使用 clockwork.FakeClock
func WithClock(c clockwork.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithLocker 开启基于锁的单轮询者模式
func WithLocker(l Locker) PollerOption {
	return func(p *Poller) { p.locker = l }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.AlertMetrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// Poller 周期性认领并处理到期定时器
type Poller struct {
	cfg     *PollerConfig
	store   Store
	handler Handler
	clock   clockwork.Clock
	locker  Locker
	logger  logger.Logger
	metrics *metrics.AlertMetrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   *conc.Future[struct{}]
}

// NewPoller 创建轮询器
func NewPoller(cfg *PollerConfig, store Store, h Handler, l logger.Logger, opts ...PollerOption) *Poller {
	def := DefaultPollerConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = def.HandleTimeout
	}
	p := &Poller{
		cfg:     cfg,
		store:   store,
		handler: h,
		clock:   clockwork.NewRealClock(),
		logger:  l.Named("timer.poller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start 在后台开始轮询
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	ticker := p.clock.NewTicker(p.cfg.Interval)
	p.done = conc.Go(func() (struct{}, error) {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return struct{}{}, nil
			case <-ticker.Chan():
				if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
					p.logger.Warn("timer poll failed", "error", err)
				}
			}
		}
	})
	p.logger.Info("timer poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop 停止轮询并等待当前批次结束
func (p *Poller) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	_, err := done.Await()
	return err
}

// Tick 执行一轮认领与处理，返回本轮处理的定时器数量
func (p *Poller) Tick(ctx context.Context) (int, error) {
	if p.locker != nil {
		ok, err := p.locker.TryLock(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := p.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				p.logger.Debug("poller lock release failed", "error", err)
			}
		}()
	}

	now := p.clock.Now()
	due, err := p.store.Due(ctx, now, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		claimed, err := p.store.Claim(ctx, t, now)
		if err != nil {
			p.logger.Warn("timer claim failed", "alert_id", t.AlertID, "kind", t.Kind, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		fired++
		p.metrics.RecordTimerFire(string(t.Kind))
		p.fire(ctx, t)
	}

	if n, err := p.store.Len(ctx); err == nil {
		p.metrics.SetPendingTimers(n)
	}
	return fired, nil
}

func (p *Poller) fire(ctx context.Context, t Timer) {
	hctx, cancel := context.WithTimeout(logger.WithAlertID(ctx, t.AlertID), p.cfg.HandleTimeout)
	defer cancel()

	if err := p.handler(hctx, t); err != nil {
		retry := Timer{AlertID: t.AlertID, Kind: t.Kind, FireAt: p.clock.Now().Add(p.cfg.RetryDelay)}
		// 处理器可能已经重新登记了同键定时器，不覆盖
		if _, serr := p.store.ScheduleIfAbsent(context.WithoutCancel(ctx), retry); serr != nil {
			p.logger.Error("timer retry schedule failed",
				"alert_id", t.AlertID, "kind", t.Kind, "error", serr)
		}
		p.logger.WarnContext(hctx, "timer handler failed, retry scheduled",
			"kind", t.Kind, "retry_at", retry.FireAt, "error", err)
	}
}
