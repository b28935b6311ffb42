// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worksteal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

// Runtime owns a fixed set of cores, each a [Worker] with its own
// [Scheduler] and [Parker], plus the shared [Injector].
//
// Thread Safety:
//   - Spawn, SpawnFunc, BlockOn, WakeOne, Close, Shutdown, and Metrics are
//     safe for concurrent use.
//   - Run must be called at most once.
type Runtime struct { // betteralign:ignore
	state runtimeState

	opts         *runtimeOptions
	logger       *logiface.Logger[logiface.Event]
	panicLimiter *catrate.Limiter
	injector     *Injector
	schedulers   []*Scheduler
	workers      []*Worker

	// closedCh is closed once the runtime starts terminating
	closedCh chan struct{}
	// doneCh is closed once all workers have exited
	doneCh chan struct{}
	// drainedCh is signalled when pending reaches zero, during Shutdown
	drainedCh chan struct{}

	taskPool sync.Pool

	searching  atomic.Int32
	parked     atomic.Int32
	wakeCursor atomic.Uint32
	draining   atomic.Bool

	// live counts allocated task cells, pending counts incomplete tasks
	live    atomic.Int64
	pending atomic.Int64
	spawned atomic.Uint64
}

// New creates a runtime. It does not start any workers, see [Runtime.Run].
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	limiter, err := newPanicLimiter(cfg.panicLogRates)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		opts:         cfg,
		logger:       cfg.logger,
		panicLimiter: limiter,
		injector:     NewInjector(),
		closedCh:     make(chan struct{}),
		doneCh:       make(chan struct{}),
		drainedCh:    make(chan struct{}, 1),
	}
	rt.taskPool.New = func() any { return new(Task) }

	rt.schedulers = make([]*Scheduler, cfg.cores)
	rt.workers = make([]*Worker, cfg.cores)
	for i := range cfg.cores {
		parker, err := NewParker()
		if err != nil {
			rt.releaseParkers()
			return nil, err
		}
		rt.schedulers[i] = newScheduler(rt, i)
		rt.workers[i] = newWorker(rt, i, rt.schedulers[i], parker)
	}

	return rt, nil
}

func newPanicLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worksteal: invalid panic log rates: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// NumCores returns the number of cores.
func (rt *Runtime) NumCores() int { return len(rt.workers) }

// Scheduler returns the scheduler of core i.
func (rt *Runtime) Scheduler(i int) *Scheduler { return rt.schedulers[i] }

// Worker returns the worker of core i.
func (rt *Runtime) Worker(i int) *Worker { return rt.workers[i] }

// Injector returns the global queue.
func (rt *Runtime) Injector() *Injector { return rt.injector }

// State returns the lifecycle state.
func (rt *Runtime) State() RuntimeState { return rt.state.Load() }

// IsClosed reports whether Close (or Shutdown) has been initiated.
func (rt *Runtime) IsClosed() bool { return rt.state.Load() >= StateTerminating }

// Done returns a channel closed once the runtime has terminated.
func (rt *Runtime) Done() <-chan struct{} { return rt.doneCh }

// Run starts every worker, and blocks until the runtime is closed, ctx is
// done, or a worker fails. It returns [ErrAlreadyRunning] if called more than
// once, or [ErrClosed] if the runtime was closed before starting.
func (rt *Runtime) Run(ctx context.Context) error {
	if !rt.state.TryTransition(StateIdle, StateRunning) {
		if rt.state.Load() == StateRunning {
			return ErrAlreadyRunning
		}
		return ErrClosed
	}
	defer rt.terminate()

	rt.logger.Info().
		Int(`cores`, len(rt.workers)).
		Int(`queue_capacity`, rt.opts.queueCapacity).
		Log(`runtime started`)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range rt.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			_ = rt.Close()
		case <-rt.closedCh:
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		rt.logger.Err().
			Err(err).
			Log(`runtime failed`)
		return err
	}
	return ctx.Err()
}

// terminate runs once all workers have exited, or Close was called before
// Run.
func (rt *Runtime) terminate() {
	var dropped int
	for _, s := range rt.schedulers {
		dropped += len(s.queue.drain())
	}
	dropped += len(rt.injector.Drain())
	rt.releaseParkers()
	rt.state.Store(StateTerminated)
	close(rt.doneCh)
	rt.logger.Info().
		Int(`dropped`, dropped).
		Int64(`pending`, rt.pending.Load()).
		Log(`runtime stopped`)
}

func (rt *Runtime) releaseParkers() {
	for _, w := range rt.workers {
		if w == nil {
			continue
		}
		if err := w.parker.Close(); err != nil {
			rt.logger.Warning().
				Int(`core`, w.index).
				Err(err).
				Log(`failed to release parker`)
		}
	}
}

// Close stops the runtime, without waiting for queued tasks. Tasks that have
// not completed are dropped, and their joiners observe [ErrClosed]. It
// returns [ErrClosed] if already closed.
func (rt *Runtime) Close() error {
	from, ok := rt.state.TransitionAny([]RuntimeState{StateRunning, StateIdle}, StateTerminating)
	if !ok {
		return ErrClosed
	}
	close(rt.closedCh)
	if from == StateIdle {
		rt.terminate()
		return nil
	}
	for _, w := range rt.workers {
		_ = w.parker.Close()
	}
	return nil
}

// Shutdown stops accepting external spawns, waits for all spawned tasks to
// complete, then closes the runtime and waits for it to terminate. Tasks
// suspended without a pending wake will never complete, in which case ctx
// bounds the wait.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if rt.IsClosed() {
		return ErrClosed
	}
	rt.draining.Store(true)

	for rt.pending.Load() != 0 {
		select {
		case <-rt.drainedCh:
		case <-rt.closedCh:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := rt.Close(); err != nil {
		return err
	}
	select {
	case <-rt.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn starts body on the injector, waking an idle core. It fails with
// [ErrClosed] once the runtime is closing, or [ErrAllocation] if the task
// limit is reached.
func (rt *Runtime) Spawn(body Body) (*JoinHandle, error) {
	if rt.draining.Load() {
		return nil, ErrClosed
	}
	t, err := rt.newTask(body)
	if err != nil {
		return nil, err
	}
	h := newJoinHandle(t)
	rt.spawned.Add(1)
	rt.inject(t)
	return h, nil
}

// SpawnFunc is Spawn, for a [BodyFunc].
func (rt *Runtime) SpawnFunc(fn func(cx *Context) Poll) (*JoinHandle, error) {
	if fn == nil {
		return nil, ErrNilBody
	}
	return rt.Spawn(BodyFunc(fn))
}

// BlockOn spawns body, and waits for its result.
func (rt *Runtime) BlockOn(ctx context.Context, body Body) (any, error) {
	h, err := rt.Spawn(body)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return h.Await(ctx)
}

// WakeOne unparks one parked core, returning true if any was woken.
func (rt *Runtime) WakeOne() bool {
	if rt.parked.Load() == 0 {
		return false
	}
	start := int(rt.wakeCursor.Add(1))
	for i := range rt.workers {
		p := rt.workers[(start+i)%len(rt.workers)].parker
		if p.IsParked() && p.TryUnpark() == nil {
			return true
		}
	}
	return false
}

// notifyIdle wakes a core after a local push, unless one is already
// searching for work.
func (rt *Runtime) notifyIdle() {
	if rt.parked.Load() != 0 && rt.searching.Load() == 0 {
		rt.WakeOne()
	}
}

func (rt *Runtime) inject(t *Task) {
	rt.injector.Enqueue(t)
	rt.WakeOne()
}

// newTask allocates a cell holding two references, one for the queue it is
// about to enter, and one for its JoinHandle.
func (rt *Runtime) newTask(body Body) (*Task, error) {
	if body == nil {
		return nil, ErrNilBody
	}
	if rt.IsClosed() {
		return nil, ErrClosed
	}
	if n := rt.live.Add(1); rt.opts.maxTasks > 0 && n > rt.opts.maxTasks {
		rt.live.Add(-1)
		return nil, ErrAllocation
	}
	rt.pending.Add(1)

	t := rt.taskPool.Get().(*Task)
	t.id = nextTaskID.Add(1)
	t.rt = rt
	t.body = body
	t.done = make(chan struct{})
	t.lastCore.Store(-1)
	t.refs.Store(2)
	t.word.Store(packTaskWord(t.generation(), TaskQueued))
	return t, nil
}

func (rt *Runtime) taskDone() {
	if rt.pending.Add(-1) == 0 && rt.draining.Load() {
		select {
		case rt.drainedCh <- struct{}{}:
		default:
		}
	}
}
