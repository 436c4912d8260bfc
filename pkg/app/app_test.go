package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestBaseApp_RunAndShutdown(t *testing.T) {
	rec := &recorder{}
	a := NewBaseApp(WithLogger(logger.NewNoop()), WithName("alerting"), WithStopTimeout(time.Second))
	a.AppendServer(ServerFuncs{
		StartFunc: func() error { rec.add("start:http"); return nil },
		StopFunc:  func() error { rec.add("stop:http"); return nil },
	})
	a.AppendCloser(
		CloserFunc(func() error { rec.add("close:db"); return nil }),
		CloserFunc(func() error { rec.add("close:redis"); return errors.New("already closed") }),
	)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	a.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []string{"start:http", "stop:http", "close:redis", "close:db"}, rec.all())
	assert.ErrorIs(t, a.Run(), ErrAppAlreadyRunning)
}

func TestBaseApp_StartFailure(t *testing.T) {
	rec := &recorder{}
	a := NewBaseApp(WithLogger(logger.NewNoop()))
	boom := errors.New("bind: address in use")
	a.AppendServer(ServerFuncs{StartFunc: func() error { return boom }})
	a.AppendCloser(CloserFunc(func() error { rec.add("closed"); return nil }))

	assert.ErrorIs(t, a.Run(), boom)
	assert.Equal(t, []string{"closed"}, rec.all())
}

func TestAssemble(t *testing.T) {
	a := Assemble(NewBaseApp(WithLogger(logger.NewNoop())), Components{
		Servers: []Server{ServerFuncs{}},
		Closers: []Closer{CloserFunc(func() error { return nil })},
	})
	assert.Len(t, a.servers, 1)
	assert.Len(t, a.closers, 1)
}
