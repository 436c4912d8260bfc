package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNow_RetriesUntilSuccess(t *testing.T) {
	s, err := New(&Config{DefaultJobOptions: JobOptions{
		MaxRetries:      3,
		BackoffStrategy: BackoffFixed,
		InitialBackoff:  time.Millisecond,
	}})
	require.NoError(t, err)
	defer s.Release()

	var calls atomic.Int32
	_, err = s.AddFunc("reconcile", "@every 1h", func() error {
		if calls.Add(1) < 3 {
			return errors.New("redis unavailable")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.RunNow("reconcile"))
	assert.EqualValues(t, 3, calls.Load())

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "reconcile", jobs[0].Name)
	assert.EqualValues(t, 1, jobs[0].RunCount)
	assert.EqualValues(t, 0, jobs[0].FailCount)
}

func TestRunNow_NoRetry(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Release()

	var calls atomic.Int32
	_, err = s.AddFunc("sweep", "@every 1h", func() error {
		calls.Add(1)
		return errors.New("boom")
	}, WithNoRetry())
	require.NoError(t, err)

	assert.Error(t, s.RunNow("sweep"))
	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, s.ListJobs()[0].FailCount)
}

func TestAddJob_Errors(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Release()

	_, err = s.AddFunc("a", "not a spec", func() error { return nil })
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = s.AddFunc("a", "@every 1m", func() error { return nil })
	require.NoError(t, err)
	_, err = s.AddFunc("a", "@every 1m", func() error { return nil })
	assert.ErrorIs(t, err, ErrDuplicateJob)

	assert.ErrorIs(t, s.RunNow("missing"), ErrJobNotFound)

	s.Remove("a")
	assert.Empty(t, s.ListJobs())
}

func TestNew_InvalidTimezone(t *testing.T) {
	_, err := New(&Config{Timezone: "Mars/Olympus"})
	assert.ErrorIs(t, err, ErrInvalidTimezone)
}

func TestScheduledExecution(t *testing.T) {
	s, err := New(&Config{WithSeconds: true})
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = s.AddFunc("tick", "@every 1s", func() error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	s.Start()
	defer s.Release()
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
