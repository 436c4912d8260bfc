package conc

// Future 异步任务结果
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.value, f.err = v, err
	close(f.done)
}

// Inner 返回完成信号，用于 select
func (f *Future[T]) Inner() <-chan struct{} {
	return f.done
}

// Await 阻塞直到任务完成
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.value, f.err
}

// Err 阻塞直到任务完成并返回错误
func (f *Future[T]) Err() error {
	<-f.done
	return f.err
}

// Go 在新的 goroutine 中执行 fn
func Go[T any](fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		var zero T
		defer func() {
			if r := recover(); r != nil {
				f.complete(zero, &PanicError{Value: r})
			}
		}()
		v, err := fn()
		f.complete(v, err)
	}()
	return f
}
