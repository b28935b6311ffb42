// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worksteal

import (
	"context"
	"math/rand/v2"
	"runtime"
)

// Worker binds one [Scheduler] and one [Parker] to a goroutine, locked to
// its OS thread. It alternates between ticking its scheduler, stealing, and
// parking.
type Worker struct {
	rt     *Runtime
	sched  *Scheduler
	parker *Parker
	rng    *rand.Rand
	index  int
}

// TaskBinder spawns tasks onto the queue appropriate for the caller: the
// current core's local queue when called from within one of its polls,
// otherwise the [Injector].
type TaskBinder struct {
	sched *Scheduler
	rt    *Runtime
}

func newWorker(rt *Runtime, index int, sched *Scheduler, parker *Parker) *Worker {
	return &Worker{
		rt:     rt,
		sched:  sched,
		parker: parker,
		// seeded per worker, so victim order differs across cores
		rng:   rand.New(rand.NewPCG(rand.Uint64(), uint64(index))),
		index: index,
	}
}

// Index returns the core index.
func (w *Worker) Index() int { return w.index }

// Scheduler returns the worker's scheduler.
func (w *Worker) Scheduler() *Scheduler { return w.sched }

// Parker returns the worker's parker.
func (w *Worker) Parker() *Parker { return w.parker }

// BuildTask returns a [TaskBinder] for cx, which may be nil.
func (w *Worker) BuildTask(cx *Context) TaskBinder {
	if w.sched.IsCurrent(cx) {
		return TaskBinder{sched: w.sched, rt: w.rt}
	}
	return TaskBinder{rt: w.rt}
}

// IsLocal reports whether spawns bind to a local queue.
func (b TaskBinder) IsLocal() bool { return b.sched != nil }

// Spawn starts body on the bound queue.
func (b TaskBinder) Spawn(body Body) (*JoinHandle, error) {
	if b.sched != nil {
		return b.sched.spawn(body)
	}
	return b.rt.Spawn(body)
}

// Step runs one scheduler tick, or, if the local queue was empty, attempts
// to steal. It returns true if no work was found, and the worker should
// park.
func (w *Worker) Step() (sleep bool) {
	if tick := w.sched.Tick(); tick.Polled != 0 || tick.HasRemaining {
		return false
	}
	return !w.steal()
}

// steal tries the injector, then rounds of random victims, then the
// injector again. It returns true if any task was acquired.
func (w *Worker) steal() bool {
	w.rt.searching.Add(1)
	defer w.rt.searching.Add(-1)

	if w.stealInjector() {
		return true
	}

	victims := w.rt.schedulers
	for round := 0; round < w.rt.opts.stealRounds; round++ {
		if len(victims) > 1 {
			start := w.rng.IntN(len(victims))
			for i := range victims {
				victim := victims[(start+i)%len(victims)]
				if victim == w.sched {
					continue
				}
				st, err := victim.TrySteal()
				if err != nil {
					continue
				}
				n := st.SpawnHalf(w.sched)
				st.Release()
				if n != 0 {
					return true
				}
			}
		}
		for i := 0; i < 1<<round; i++ {
			runtime.Gosched()
		}
	}

	return w.stealInjector()
}

func (w *Worker) stealInjector() bool {
	for i := 0; i < dequeueSpinLimit; i++ {
		st, err := w.rt.injector.TrySteal()
		switch err {
		case nil:
			n := st.SpawnHalf(w.sched)
			st.Release()
			if n != 0 {
				return true
			}
			if w.rt.injector.IsEmpty() {
				return false
			}
		case ErrEmpty:
			return false
		}
		runtime.Gosched()
	}
	return false
}

// hasWork is the park recheck. It may report stale work, but never misses
// work published before the worker's parked state.
func (w *Worker) hasWork() bool {
	if !w.rt.injector.IsEmpty() {
		return true
	}
	for _, s := range w.rt.schedulers {
		if s.queue.Len() != 0 {
			return true
		}
	}
	return w.rt.IsClosed()
}

// Run drives the worker until the runtime closes, or ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.rt.opts.pinThreads {
		if err := pinThread(w.index); err != nil {
			return err
		}
	}

	w.rt.logger.Debug().
		Int(`core`, w.index).
		Log(`worker started`)
	defer w.rt.logger.Debug().
		Int(`core`, w.index).
		Log(`worker stopped`)

	for ctx.Err() == nil && !w.rt.IsClosed() {
		if !w.Step() {
			continue
		}
		w.rt.parked.Add(1)
		err := w.parker.park(-1, w.hasWork)
		w.rt.parked.Add(-1)
		if err == ErrClosed {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
