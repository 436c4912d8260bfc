package conc

import (
	"errors"
	"fmt"

	"github.com/panjf2000/ants/v2"
)

var (
	// ErrPoolOverload 非阻塞模式下池已满
	ErrPoolOverload = errors.New("conc: pool overload")
	// ErrPoolClosed 池已释放
	ErrPoolClosed = errors.New("conc: pool closed")
)

// PanicError 任务 panic 时返回的错误
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("conc: task panicked: %v", e.Value)
}

// PoolOption 协程池选项
type PoolOption func(*poolOptions)

type poolOptions struct {
	nonBlocking bool
	preAlloc    bool
}

// WithNonBlocking 池满时立即返回 ErrPoolOverload 而不是等待
func WithNonBlocking() PoolOption {
	return func(o *poolOptions) { o.nonBlocking = true }
}

// WithPreAlloc 预分配 worker 队列
func WithPreAlloc() PoolOption {
	return func(o *poolOptions) { o.preAlloc = true }
}

// Pool 基于 ants 的有界协程池
type Pool[T any] struct {
	inner *ants.Pool
}

// NewPool 创建容量为 size 的协程池
func NewPool[T any](size int, opts ...PoolOption) *Pool[T] {
	o := &poolOptions{}
	for _, opt := range opts {
		opt(o)
	}
	p, err := ants.NewPool(size,
		ants.WithNonblocking(o.nonBlocking),
		ants.WithPreAlloc(o.preAlloc),
	)
	if err != nil {
		// size <= 0 时 ants 返回错误，退化为默认容量
		p, _ = ants.NewPool(ants.DefaultAntsPoolSize)
	}
	return &Pool[T]{inner: p}
}

// Submit 提交任务，返回的 Future 在任务结束或提交失败时完成
func (p *Pool[T]) Submit(fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	err := p.inner.Submit(func() {
		var zero T
		defer func() {
			if r := recover(); r != nil {
				f.complete(zero, &PanicError{Value: r})
			}
		}()
		v, err := fn()
		f.complete(v, err)
	})
	if err != nil {
		var zero T
		switch {
		case errors.Is(err, ants.ErrPoolOverload):
			err = ErrPoolOverload
		case errors.Is(err, ants.ErrPoolClosed):
			err = ErrPoolClosed
		}
		f.complete(zero, err)
	}
	return f
}

// Running 当前运行中的 worker 数
func (p *Pool[T]) Running() int {
	return p.inner.Running()
}

// Cap 池容量
func (p *Pool[T]) Cap() int {
	return p.inner.Cap()
}

// Release 释放池，已提交的任务会继续执行完
func (p *Pool[T]) Release() {
	p.inner.Release()
}
