package worksteal

import (
	"runtime/debug"
	"sync/atomic"
)

// Scheduler is the per-core run loop. It owns a [LocalQueue], and polls
// tasks from it, interleaving the [Injector] every N ticks, so that globally
// queued tasks are not starved by a busy core.
//
// Other than TrySteal, and the read-only accessors, methods must only be
// called by the core's owner (its [Worker], or a task polled by it).
type Scheduler struct { // betteralign:ignore
	_         [sizeOfCacheLine]byte
	current   atomic.Pointer[Task]
	currentID atomic.Uint64
	stealing  atomic.Bool
	_         [sizeOfCacheLine]byte

	rt       *Runtime
	queue    *LocalQueue
	injector *Injector
	cx       Context

	index    int
	budget   int
	interval uint32
	tick     uint32

	polled    atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
	spawned   atomic.Uint64
	stolen    atomic.Uint64
}

// Tick summarizes a bounded run of the scheduler.
type Tick struct {
	// Polled is the number of tasks polled.
	Polled int
	// HasRemaining indicates the local queue was non-empty afterwards.
	HasRemaining bool
}

func newScheduler(rt *Runtime, index int) *Scheduler {
	s := &Scheduler{
		rt:       rt,
		queue:    NewLocalQueue(rt.opts.queueCapacity),
		injector: rt.injector,
		index:    index,
		budget:   rt.opts.tickBudget,
		interval: rt.opts.globalQueueInterval,
	}
	s.cx.sched = s
	return s
}

// Index returns the core index.
func (s *Scheduler) Index() int { return s.index }

// Queued returns the number of tasks in the local queue.
func (s *Scheduler) Queued() int { return s.queue.Len() }

// Current returns the ID of the task being polled, or 0.
func (s *Scheduler) Current() uint64 { return s.currentID.Load() }

// IsCurrent reports whether cx belongs to a poll in progress on this core.
func (s *Scheduler) IsCurrent(cx *Context) bool {
	if cx == nil || cx.sched != s || cx.task == nil {
		return false
	}
	return s.current.Load() == cx.task
}

// Tick runs up to the configured tick budget.
func (s *Scheduler) Tick() Tick { return s.TickN(s.budget) }

// TickN polls up to n tasks, stopping early once no task is available.
func (s *Scheduler) TickN(n int) Tick {
	var res Tick
	for res.Polled < n {
		t := s.next()
		if t == nil {
			break
		}
		s.run(t)
		res.Polled++
	}
	res.HasRemaining = s.queue.Len() != 0
	return res
}

func (s *Scheduler) next() *Task {
	s.tick++
	if s.interval != 0 && s.tick%s.interval == 0 {
		// transient results fall through to the local queue
		if t, err := s.injector.TryDequeue(); err == nil {
			return t
		}
	}
	return s.queue.PopFront()
}

func (s *Scheduler) run(t *Task) {
	gen := t.beginPoll()
	t.lastCore.Store(int32(s.index))
	s.current.Store(t)
	s.currentID.Store(t.id)
	s.cx.reset(t, gen)

	res, perr := s.poll(t)
	yield := s.cx.yield

	s.cx.reset(nil, 0)
	s.currentID.Store(0)
	s.current.Store(nil)
	s.polled.Add(1)

	switch {
	case perr != nil:
		s.panicked.Add(1)
		s.logPanic(perr)
		s.finish(t, gen, nil, perr)
	case res.ready:
		s.finish(t, gen, res.value, res.err)
	case t.endPending(gen, yield):
		s.pushBack(t)
	}
}

func (s *Scheduler) poll(t *Task) (res Poll, perr *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			perr = &PanicError{Value: r, Stack: debug.Stack(), TaskID: t.id}
		}
	}()
	return t.body.Poll(&s.cx), nil
}

func (s *Scheduler) finish(t *Task, gen uint32, value any, err error) {
	t.complete(gen, value, err)
	s.completed.Add(1)
	s.rt.taskDone()
	// drop the queue's reference
	t.release()
}

func (s *Scheduler) logPanic(perr *PanicError) {
	if _, ok := s.rt.panicLimiter.Allow(s.index); !ok {
		return
	}
	s.rt.logger.Err().
		Int(`core`, s.index).
		Uint64(`task`, perr.TaskID).
		Any(`panic`, perr.Value).
		Str(`stack`, string(perr.Stack)).
		Log(`task panicked`)
}

func (s *Scheduler) pushBack(t *Task) {
	s.queue.PushBack(t, s.injector)
	s.rt.notifyIdle()
}

func (s *Scheduler) pushFast(t *Task) {
	s.queue.PushFast(t, s.injector)
	s.rt.notifyIdle()
}

// Spawn starts a task on this core's local queue. Owner only, e.g. from
// within a poll on this core, or before the runtime is started.
func (s *Scheduler) Spawn(body Body) (*JoinHandle, error) { return s.spawn(body) }

func (s *Scheduler) spawn(body Body) (*JoinHandle, error) {
	t, err := s.rt.newTask(body)
	if err != nil {
		return nil, err
	}
	h := newJoinHandle(t)
	s.spawned.Add(1)
	s.pushBack(t)
	return h, nil
}

// TrySteal acquires exclusive steal access to this core's queue. It fails
// with [ErrBusy] if another [Stealer] holds it, or [ErrEmpty].
func (s *Scheduler) TrySteal() (*Stealer, error) {
	if !s.stealing.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	if s.queue.Len() == 0 {
		s.stealing.Store(false)
		return nil, ErrEmpty
	}
	return &Stealer{victim: s}, nil
}
