package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"
)

// Job 定时任务
type Job interface {
	Name() string
	Run() error
}

type funcJob struct {
	name string
	fn   func() error
}

func (f *funcJob) Name() string { return f.name }
func (f *funcJob) Run() error   { return f.fn() }

// JobInfo 任务快照
type JobInfo struct {
	ID        cron.EntryID
	Name      string
	Spec      string
	NextRun   time.Time
	PrevRun   time.Time
	RunCount  int64
	FailCount int64
}

type entry struct {
	id        cron.EntryID
	job       Job
	spec      string
	opts      JobOptions
	runCount  atomic.Int64
	failCount atomic.Int64
}

// newBackOff 按任务选项构造退避策略
func newBackOff(o JobOptions) backoff.BackOff {
	if o.BackoffStrategy == BackoffFixed {
		return backoff.NewConstantBackOff(o.InitialBackoff)
	}
	b := backoff.NewExponentialBackOff()
	if o.InitialBackoff > 0 {
		b.InitialInterval = o.InitialBackoff
	}
	if o.MaxBackoff > 0 {
		b.MaxInterval = o.MaxBackoff
	}
	if o.BackoffMultiplier > 0 {
		b.Multiplier = o.BackoffMultiplier
	}
	return b
}

// execute 执行一次任务，失败按选项重试
func (e *entry) execute(ctx context.Context) error {
	e.runCount.Add(1)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, e.job.Run()
	},
		backoff.WithBackOff(newBackOff(e.opts)),
		backoff.WithMaxTries(uint(e.opts.MaxRetries+1)),
	)
	if err != nil {
		e.failCount.Add(1)
	}
	return err
}
