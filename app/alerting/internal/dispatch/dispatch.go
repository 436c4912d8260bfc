// Package dispatch 告警推送
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/metrics"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ops"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/notify"
	"github.com/lk2023060901/fleetalert/pkg/util/conc"
)

var (
	// ErrOverloaded 推送队列已满
	ErrOverloaded = errors.New("dispatch queue overloaded")
	// ErrClosed 推送器已关闭
	ErrClosed = errors.New("dispatcher closed")
)

// Dispatcher 推送契约。返回前只保证已受理，投递结果不影响告警状态
type Dispatcher interface {
	Dispatch(ctx context.Context, a *model.Alert, roles []string, channels []model.Channel) error
}

// Config 推送配置
type Config struct {
	Workers         int           `mapstructure:"workers"`
	MaxTries        uint          `mapstructure:"max_tries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	DrainTimeout    time.Duration `mapstructure:"drain_timeout"`
	// 协程池满时的待重新提交队列
	QueueSize    int           `mapstructure:"queue_size"`
	QueueTimeout time.Duration `mapstructure:"queue_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:         64,
		MaxTries:        5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		SendTimeout:     10 * time.Second,
		DrainTimeout:    15 * time.Second,
		QueueSize:       1024,
		QueueTimeout:    2 * time.Minute,
	}
}

// job 单个渠道的一次推送
type job struct {
	ctx context.Context
	n   notify.Notifier
	ch  model.Channel
	msg *notify.Notification
}

// AsyncDispatcher 每个渠道一个任务，在协程池中带退避重试。
// 池满时任务进入 overflow 队列，由后台循环退避重新提交
type AsyncDispatcher struct {
	cfg       *Config
	notifiers map[model.Channel]notify.Notifier
	pool      *conc.Pool[struct{}]
	reporter  ops.Reporter
	metrics   *metrics.AlertMetrics
	logger    logger.Logger

	overflow chan *job
	loopCtx  context.Context
	stopLoop context.CancelFunc
	loopDone chan struct{}

	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ Dispatcher = (*AsyncDispatcher)(nil)

// NewAsyncDispatcher 创建推送器，notifiers 按渠道注册
func NewAsyncDispatcher(
	cfg *Config,
	notifiers map[model.Channel]notify.Notifier,
	reporter ops.Reporter,
	m *metrics.AlertMetrics,
	l logger.Logger,
) *AsyncDispatcher {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = def.MaxTries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = def.QueueTimeout
	}
	if reporter == nil {
		reporter = ops.Nop{}
	}
	d := &AsyncDispatcher{
		cfg:       cfg,
		notifiers: notifiers,
		pool:      conc.NewPool[struct{}](cfg.Workers, conc.WithNonBlocking()),
		reporter:  reporter,
		metrics:   m,
		logger:    l.Named("dispatch"),
		overflow:  make(chan *job, cfg.QueueSize),
		loopDone:  make(chan struct{}),
	}
	d.loopCtx, d.stopLoop = context.WithCancel(context.Background())
	go d.resubmitLoop()
	return d
}

// Dispatch 受理推送，未注册的渠道记录后跳过
func (d *AsyncDispatcher) Dispatch(ctx context.Context, a *model.Alert, roles []string, channels []model.Channel) error {
	if d.closed.Load() {
		return ErrClosed
	}
	snapshot := a.Clone()
	var errs error
	for _, ch := range channels {
		n, ok := d.notifiers[ch]
		if !ok {
			d.logger.WarnContext(ctx, "no notifier for channel", "channel", ch, "alert_id", a.ID)
			d.metrics.RecordDispatch(string(ch), true)
			continue
		}
		j := &job{ctx: context.WithoutCancel(ctx), n: n, ch: ch, msg: BuildNotification(snapshot, roles, ch)}
		d.wg.Add(1)
		err := d.submit(j)
		switch {
		case err == nil:
		case errors.Is(err, conc.ErrPoolOverload) && d.enqueue(j):
			d.logger.DebugContext(ctx, "dispatch pool saturated, queued", "alert_id", a.ID, "channel", ch)
		default:
			err = errors.Wrapf(ErrOverloaded, "%s: %v", ch, err)
			d.abandon(j, err)
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// submit 非阻塞提交，池满或已释放时返回错误且任务不会执行
func (d *AsyncDispatcher) submit(j *job) error {
	f := d.pool.Submit(func() (struct{}, error) {
		defer d.wg.Done()
		d.deliver(j.ctx, j.n, j.ch, j.msg)
		return struct{}{}, nil
	})
	// 提交失败时 Future 立即完成
	select {
	case <-f.Inner():
		if err := f.Err(); errors.Is(err, conc.ErrPoolOverload) || errors.Is(err, conc.ErrPoolClosed) {
			return err
		}
	default:
	}
	return nil
}

func (d *AsyncDispatcher) enqueue(j *job) bool {
	select {
	case d.overflow <- j:
		return true
	default:
		return false
	}
}

// abandon 放弃一次未能交给 worker 的推送，与重试耗尽同样上报
func (d *AsyncDispatcher) abandon(j *job, err error) {
	defer d.wg.Done()
	d.metrics.RecordDispatch(string(j.ch), true)
	d.reporter.Report(j.ctx, ops.Incident{
		Title: "notification dispatch exhausted",
		Err:   err,
		Labels: map[string]string{
			"alert_id": j.msg.Labels["alert_id"],
			"channel":  string(j.ch),
			"reason":   "queue_overloaded",
		},
	})
}

func (d *AsyncDispatcher) resubmitLoop() {
	defer close(d.loopDone)
	for {
		select {
		case j := <-d.overflow:
			d.resubmit(j)
		case <-d.loopCtx.Done():
			for {
				select {
				case j := <-d.overflow:
					d.abandon(j, ErrClosed)
				default:
					return
				}
			}
		}
	}
}

// resubmit 退避等待空闲 worker，超过 QueueTimeout 放弃
func (d *AsyncDispatcher) resubmit(j *job) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval

	_, err := backoff.Retry(d.loopCtx, func() (struct{}, error) {
		err := d.submit(j)
		if errors.Is(err, conc.ErrPoolClosed) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(d.cfg.QueueTimeout))
	if err != nil {
		d.abandon(j, errors.Wrapf(ErrOverloaded, "%s: %v", j.ch, err))
	}
}

func (d *AsyncDispatcher) deliver(ctx context.Context, n notify.Notifier, ch model.Channel, msg *notify.Notification) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
		err := n.Send(sctx, msg)
		if errors.Is(err, notify.ErrInvalidConfig) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(d.cfg.MaxTries))

	alertID := msg.Labels["alert_id"]
	d.metrics.RecordDispatch(string(ch), err != nil)
	if err != nil {
		d.reporter.Report(ctx, ops.Incident{
			Title:  "notification dispatch exhausted",
			Err:    err,
			Labels: map[string]string{"alert_id": alertID, "channel": string(ch), "attempts": fmt.Sprint(attempt)},
		})
		return
	}
	d.logger.Debug("notification delivered", "alert_id", alertID, "channel", ch, "attempts", attempt)
}

// Close 等待在途推送完成，超过 DrainTimeout 后放弃等待
func (d *AsyncDispatcher) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.DrainTimeout):
		d.logger.Warn("dispatcher drain timed out")
	}
	d.stopLoop()
	<-d.loopDone
	d.pool.Release()
	return nil
}

// BuildNotification 把告警渲染为通知，ID 由告警、状态与渠道组成，网关据此幂等
func BuildNotification(a *model.Alert, roles []string, ch model.Channel) *notify.Notification {
	vessel := a.VesselKey()
	recipients := make([]notify.Recipient, 0, len(roles))
	for _, r := range roles {
		recipients = append(recipients, notify.Recipient{Role: r, CompanyID: a.CompanyID, VesselID: vessel})
	}
	labels := map[string]string{
		"alert_id": a.ID,
		"severity": string(a.Severity),
		"category": string(a.Category),
		"status":   string(a.Status),
		"channel":  string(ch),
	}
	if vessel != "" {
		labels["vessel_id"] = vessel
	}
	return &notify.Notification{
		ID:         fmt.Sprintf("%s:%s:%s", a.ID, a.Status, ch),
		Level:      levelFor(a.Severity),
		Title:      fmt.Sprintf("[%s] %s", a.Severity, a.Title),
		Body:       a.Message,
		Recipients: recipients,
		Labels:     labels,
		CreatedAt:  a.UpdatedAt,
	}
}

func levelFor(s model.Severity) notify.Level {
	switch s {
	case model.SeverityRed:
		return notify.LevelCritical
	case model.SeverityOrange:
		return notify.LevelWarning
	}
	return notify.LevelInfo
}
