package worksteal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeState_String(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Terminating", StateTerminating.String())
	assert.Equal(t, "Terminated", StateTerminated.String())
	assert.Equal(t, "Unknown", RuntimeState(42).String())
}

func TestRuntime_closeBeforeRun(t *testing.T) {
	rt, err := New(WithCores(2))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, rt.State())
	assert.False(t, rt.IsClosed())

	h, err := rt.Spawn(readyBody(nil))
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, rt.Close())
	assert.Equal(t, StateTerminated, rt.State())
	assert.True(t, rt.IsClosed())
	assert.ErrorIs(t, rt.Close(), ErrClosed)
	assert.ErrorIs(t, rt.Run(context.Background()), ErrClosed)

	_, err = h.Await(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = rt.Spawn(readyBody(nil))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, rt.Shutdown(context.Background()), ErrClosed)
}

func TestRuntime_runTwice(t *testing.T) {
	rt := startTestRuntime(t, WithCores(1))
	require.Eventually(t, func() bool { return rt.State() == StateRunning }, 5*time.Second, time.Millisecond)
	assert.ErrorIs(t, rt.Run(context.Background()), ErrAlreadyRunning)
}

func TestRuntime_runContextCancel(t *testing.T) {
	rt, err := New(WithCores(2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- rt.Run(ctx) }()

	v, err := rt.BlockOn(testContext(t), readyBody(`ok`))
	require.NoError(t, err)
	assert.Equal(t, `ok`, v)

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, rt.IsClosed())
	assert.Equal(t, StateTerminated, rt.State())
}

func TestRuntime_shutdownWaitsForTasks(t *testing.T) {
	rt, err := New(WithCores(2))
	require.NoError(t, err)
	result := make(chan error, 1)
	go func() { result <- rt.Run(context.Background()) }()

	const numTasks = 50
	handles := make([]*JoinHandle, numTasks)
	for i := range handles {
		remaining := 3
		h, err := rt.SpawnFunc(func(cx *Context) Poll {
			if remaining--; remaining > 0 {
				cx.Yield()
				return Pending()
			}
			return Ready(i)
		})
		require.NoError(t, err)
		handles[i] = h
	}

	require.NoError(t, rt.Shutdown(testContext(t)))
	assert.Equal(t, StateTerminated, rt.State())
	require.NoError(t, <-result)

	for i, h := range handles {
		v, err := h.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
		h.Release()
	}

	_, err = rt.Spawn(readyBody(nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRuntime_shutdownDeadline(t *testing.T) {
	rt := startTestRuntime(t, WithCores(1))

	h, err := rt.SpawnFunc(func(*Context) Poll { return Pending() })
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rt.Shutdown(ctx), context.DeadlineExceeded)

	// spawns are rejected while draining
	_, err = rt.Spawn(readyBody(nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRuntime_wakeOneNoneParked(t *testing.T) {
	rt := newTestRuntime(t, WithCores(2))
	assert.False(t, rt.WakeOne())
}

func TestRuntime_wakeOneParked(t *testing.T) {
	rt := startTestRuntime(t, WithCores(2))
	allParked := func() bool {
		for _, c := range rt.Metrics().Cores {
			if !c.Parked {
				return false
			}
		}
		return true
	}
	require.Eventually(t, allParked, 5*time.Second, time.Millisecond)

	assert.True(t, rt.WakeOne())
	require.Eventually(t, allParked, 5*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, rt.Metrics().Unparks, uint64(1))
}

func TestRuntime_accessors(t *testing.T) {
	rt := newTestRuntime(t, WithCores(3))
	assert.Equal(t, 3, rt.NumCores())
	for i := range rt.NumCores() {
		assert.Equal(t, i, rt.Scheduler(i).Index())
		assert.Equal(t, i, rt.Worker(i).Index())
		assert.Same(t, rt.Scheduler(i), rt.Worker(i).Scheduler())
		assert.NotNil(t, rt.Worker(i).Parker())
	}
	assert.NotNil(t, rt.Injector())

	m := rt.Metrics()
	assert.Len(t, m.Cores, 3)
	assert.Equal(t, Metrics{
		Cores: []CoreMetrics{{Index: 0}, {Index: 1}, {Index: 2}},
	}, m)
}

func TestRuntime_logsLifecycle(t *testing.T) {
	var buf syncBuffer
	rt, err := New(WithCores(1), WithLogger(newTestLogger(&buf)))
	require.NoError(t, err)
	result := make(chan error, 1)
	go func() { result <- rt.Run(context.Background()) }()

	_, err = rt.BlockOn(testContext(t), readyBody(nil))
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown(testContext(t)))
	require.NoError(t, <-result)

	out := buf.String()
	assert.Contains(t, out, `"msg":"runtime started"`)
	assert.Contains(t, out, `"msg":"worker started"`)
	assert.Contains(t, out, `"msg":"worker stopped"`)
	assert.Contains(t, out, `"msg":"runtime stopped"`)
}
