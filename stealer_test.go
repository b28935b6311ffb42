package worksteal

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_TrySteal_exclusive(t *testing.T) {
	rt := newTestRuntime(t, WithCores(2))
	victim, thief := rt.Scheduler(0), rt.Scheduler(1)

	_, err := victim.TrySteal()
	assert.ErrorIs(t, err, ErrEmpty)

	for range 6 {
		_, err := victim.Spawn(readyBody(nil))
		require.NoError(t, err)
	}

	st, err := victim.TrySteal()
	require.NoError(t, err)

	_, err = victim.TrySteal()
	assert.ErrorIs(t, err, ErrBusy)

	assert.Equal(t, 3, st.SpawnHalf(thief))
	assert.Equal(t, 3, victim.Queued())
	assert.Equal(t, 3, thief.Queued())
	assert.Equal(t, 0, st.SpawnN(victim, 10), "cannot steal into the victim")

	st.Release()
	st.Release()

	st, err = victim.TrySteal()
	require.NoError(t, err)
	defer st.Release()
	assert.Equal(t, 1, st.SpawnN(thief, 1))
	assert.Equal(t, uint64(4), rt.Metrics().Stolen)
}

func TestStealer_releasedUsePanics(t *testing.T) {
	rt := newTestRuntime(t, WithCores(1))
	_, err := rt.Spawn(readyBody(nil))
	require.NoError(t, err)

	st, err := rt.Injector().TrySteal()
	require.NoError(t, err)
	st.Release()
	assert.Panics(t, func() { st.SpawnN(rt.Scheduler(0), 1) })
}

func TestInjectorStealer_spawnHalf(t *testing.T) {
	rt := newTestRuntime(t, WithCores(1), WithLocalQueueCapacity(4))
	s := rt.Scheduler(0)
	for range 9 {
		_, err := rt.Spawn(readyBody(nil))
		require.NoError(t, err)
	}

	st, err := rt.Injector().TrySteal()
	require.NoError(t, err)
	_, err = rt.Injector().TryDequeue()
	assert.ErrorIs(t, err, ErrBusy)

	// half of 9, bounded by the local capacity
	assert.Equal(t, 4, st.SpawnHalf(s))
	st.Release()

	assert.Equal(t, 4, s.Queued())
	assert.Equal(t, 5, rt.Injector().Len())
}

// TestStealer_concurrentThieves verifies that contending thieves never
// duplicate a task, and that Busy victims are skipped rather than waited on.
func TestStealer_concurrentThieves(t *testing.T) {
	t.Parallel()

	const numTasks = 256
	rt := newTestRuntime(t, WithCores(5), WithLocalQueueCapacity(numTasks))
	victim := rt.Scheduler(0)
	for range numTasks {
		_, err := victim.Spawn(readyBody(nil))
		require.NoError(t, err)
	}

	var busy atomic.Int64
	var wg sync.WaitGroup
	for i := 1; i < rt.NumCores(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			thief := rt.Scheduler(i)
			for victim.Queued() != 0 {
				st, err := victim.TrySteal()
				switch err {
				case nil:
					st.SpawnN(thief, 8)
					st.Release()
				case ErrBusy:
					busy.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	total := 0
	ids := make(map[uint64]struct{})
	for i := 1; i < rt.NumCores(); i++ {
		q := rt.Scheduler(i).queue
		for task := q.PopFront(); task != nil; task = q.PopFront() {
			ids[task.id] = struct{}{}
			total++
		}
	}
	assert.Equal(t, numTasks, total)
	assert.Len(t, ids, numTasks)
	t.Logf("busy results: %d", busy.Load())
}
