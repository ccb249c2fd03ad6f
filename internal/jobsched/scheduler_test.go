package jobsched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterRunsOnSchedule(t *testing.T) {
	s := New(nil)
	var runs int32

	require.NoError(t, s.Register("demo", "@every 20ms", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestRemoveStopsFutureRuns(t *testing.T) {
	s := New(nil)
	var runs int32

	require.NoError(t, s.Register("demo", "@every 15ms", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, time.Second, 5*time.Millisecond)
	s.Remove("demo")
	after := atomic.LoadInt32(&runs)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&runs), "no further runs after Remove")
	require.NoError(t, s.Stop(context.Background()))
}

func TestRegisterReplacesExistingEntry(t *testing.T) {
	s := New(nil)
	var firstRuns, secondRuns int32

	require.NoError(t, s.Register("demo", "@every 1h", func(ctx context.Context) error {
		atomic.AddInt32(&firstRuns, 1)
		return nil
	}))
	require.NoError(t, s.Register("demo", "@every 15ms", func(ctx context.Context) error {
		atomic.AddInt32(&secondRuns, 1)
		return nil
	}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&secondRuns) >= 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&firstRuns))
}
