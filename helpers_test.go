package worksteal

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// newTestRuntime returns a runtime that is not running, so tests can drive
// its schedulers and workers directly.
func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// startTestRuntime runs rt in the background, stopping it on cleanup.
func startTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(opts...)
	require.NoError(t, err)
	runErr := make(chan error, 1)
	go func() { runErr <- rt.Run(context.Background()) }()
	t.Cleanup(func() {
		_ = rt.Close()
		select {
		case err := <-runErr:
			if err != nil {
				t.Errorf("Run() failed: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return")
		}
	})
	return rt
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newTestTask allocates a bare cell, for exercising queues in isolation.
func newTestTask(id uint64) *Task {
	t := new(Task)
	t.id = id
	return t
}

// readyBody completes immediately with value.
func readyBody(value any) Body {
	return BodyFunc(func(*Context) Poll { return Ready(value) })
}

// suspendOnce suspends on its first poll, publishing its waker, then
// completes with value.
type suspendOnce struct {
	wakers chan Waker
	value  any
	polls  int
}

func newSuspendOnce(value any) *suspendOnce {
	return &suspendOnce{wakers: make(chan Waker, 1), value: value}
}

func (x *suspendOnce) Poll(cx *Context) Poll {
	x.polls++
	if x.polls == 1 {
		x.wakers <- cx.Waker()
		return Pending()
	}
	return Ready(x.value)
}

// syncBuffer is a bytes.Buffer safe for concurrent writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func newTestLogger(w *syncBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()
}

// injectorToLocal moves injected tasks onto s, as an idle worker would.
func injectorToLocal(t *testing.T, rt *Runtime, s *Scheduler) int {
	t.Helper()
	st, err := rt.Injector().TrySteal()
	if err == ErrEmpty {
		return 0
	}
	require.NoError(t, err)
	defer st.Release()
	return st.SpawnN(s, s.queue.Cap())
}
