package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lk2023060901/fleetalert/pkg/config"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler 基于 robfig/cron 的定时任务调度器
type Scheduler struct {
	cfg    *Config
	cron   *cron.Cron
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	entries map[string]*entry
}

// Option 调度器选项
type Option func(*Scheduler)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 创建调度器
func New(cfg *Config, opts ...Option) (*Scheduler, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:     merged,
		logger:  logger.NewNoop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler")
	s.ctx, s.cancel = context.WithCancel(context.Background())

	loc := time.Local
	if merged.Timezone != "" {
		if loc, err = time.LoadLocation(merged.Timezone); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, merged.Timezone)
		}
	}

	cl := &cronLogger{l: s.logger}
	var wrappers []cron.JobWrapper
	if merged.Middleware.Recovery {
		wrappers = append(wrappers, cron.Recover(cl))
	}
	if merged.SkipIfStillRunning {
		wrappers = append(wrappers, cron.SkipIfStillRunning(cl))
	}

	cronOpts := []cron.Option{
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(wrappers...),
	}
	if merged.WithSeconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}
	s.cron = cron.New(cronOpts...)
	return s, nil
}

// AddFunc 注册函数任务
func (s *Scheduler) AddFunc(name, spec string, fn func() error, opts ...JobOption) (cron.EntryID, error) {
	return s.AddJob(name, spec, &funcJob{name: name, fn: fn}, opts...)
}

// AddJob 注册任务，name 在调度器内唯一
func (s *Scheduler) AddJob(name, spec string, job Job, opts ...JobOption) (cron.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	jo := s.cfg.DefaultJobOptions
	for _, opt := range opts {
		opt(&jo)
	}
	e := &entry{job: job, spec: spec, opts: jo}

	id, err := s.cron.AddFunc(spec, func() { _ = s.run(e) })
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidSpec, spec, err)
	}
	e.id = id
	s.entries[name] = e
	return id, nil
}

// RunNow 立即同步执行一次已注册任务，不影响后续调度
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.run(e)
}

func (s *Scheduler) run(e *entry) error {
	start := time.Now()
	err := e.execute(s.ctx)
	if s.cfg.Middleware.Logging {
		if err != nil {
			s.logger.Error("job failed", "job", e.job.Name(), "duration", time.Since(start), "error", err)
		} else {
			s.logger.Debug("job finished", "job", e.job.Name(), "duration", time.Since(start))
		}
	}
	return err
}

// Remove 移除任务
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		s.cron.Remove(e.id)
		delete(s.entries, name)
	}
}

// ListJobs 返回任务快照
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.cron.Entry(e.id)
		out = append(out, JobInfo{
			ID:        e.id,
			Name:      name,
			Spec:      e.spec,
			NextRun:   ce.Next,
			PrevRun:   ce.Prev,
			RunCount:  e.runCount.Load(),
			FailCount: e.failCount.Load(),
		})
	}
	return out
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop 停止调度，返回的 context 在运行中的任务结束后关闭
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

// Release 停止并等待所有任务结束
func (s *Scheduler) Release() {
	<-s.Stop().Done()
}

// Close 实现 io.Closer
func (s *Scheduler) Close() error {
	s.Release()
	return nil
}

// cronLogger 适配 cron.Logger
type cronLogger struct {
	l logger.Logger
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
