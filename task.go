package worksteal

import (
	"sync/atomic"
)

type (
	// Body is the unit of cooperative work run by a [Task]. Poll must not
	// block. It is called by at most one core at a time, and never again
	// after it has returned a ready result.
	Body interface {
		Poll(cx *Context) Poll
	}

	// BodyFunc adapts a function to the [Body] interface.
	BodyFunc func(cx *Context) Poll

	// Poll is the outcome of a single [Body.Poll] call. The zero value is
	// pending.
	Poll struct {
		value any
		err   error
		ready bool
	}

	// Waker makes a suspended task runnable again. Implementations must be
	// safe to call from any goroutine, any number of times.
	Waker interface {
		Wake()
	}

	// WakerFunc adapts a function to the [Waker] interface.
	WakerFunc func()

	// Task is a heap cell holding one spawned [Body], its lifecycle state,
	// and its result. Cells are reference counted, and recycled once the
	// last reference is released, after completion.
	Task struct {
		// next is the intrusive link, used only within an Injector
		next atomic.Pointer[Task]

		// word is the lifecycle word: generation<<32 | notified | state
		word     atomic.Uint64
		refs     atomic.Int32
		lastCore atomic.Int32

		joiner atomic.Pointer[joinSlot]
		rt     *Runtime
		body   Body
		done   chan struct{}
		value  any
		err    error
		id     uint64
	}

	// TaskRef is an owning reference to a [Task]. Copies must be made via
	// Clone, and each reference released exactly once.
	TaskRef struct {
		t *Task
	}

	// taskWaker wakes the generation of a task it was created for. Wakes
	// against a recycled cell are ignored.
	taskWaker struct {
		t   *Task
		gen uint32
	}

	joinSlot struct {
		waker Waker
	}
)

var (
	_ Body  = BodyFunc(nil)
	_ Waker = WakerFunc(nil)
	_ Waker = taskWaker{}
)

// nextTaskID is shared across runtimes, so IDs are unique per process.
var nextTaskID atomic.Uint64

// Poll implements [Body].
func (f BodyFunc) Poll(cx *Context) Poll { return f(cx) }

// Wake implements [Waker].
func (f WakerFunc) Wake() { f() }

// Ready returns a completed poll, with the given result.
func Ready(value any) Poll { return Poll{value: value, ready: true} }

// Fail returns a completed poll, with the given error.
func Fail(err error) Poll { return Poll{err: err, ready: true} }

// Pending returns a poll that has not completed. The task is suspended until
// woken, unless [Context.Yield] was called during the poll.
func Pending() Poll { return Poll{} }

// IsReady reports whether the poll completed.
func (p Poll) IsReady() bool { return p.ready }

// Value returns the result value of a ready poll.
func (p Poll) Value() any { return p.value }

// Err returns the error of a ready poll.
func (p Poll) Err() error { return p.err }

// ID returns the task's identifier, unique within the process.
func (t *Task) ID() uint64 { return t.id }

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	_, state, _ := unpackTaskWord(t.word.Load())
	return state
}

// LastCore returns the index of the core that last polled the task, or -1.
func (t *Task) LastCore() int { return int(t.lastCore.Load()) }

func (t *Task) generation() uint32 {
	gen, _, _ := unpackTaskWord(t.word.Load())
	return gen
}

func (t *Task) retain() {
	if t.refs.Add(1) <= 1 {
		fatalf("task %d retained after release", t.id)
	}
}

func (t *Task) release() {
	switch n := t.refs.Add(-1); {
	case n == 0:
		t.recycle()
	case n < 0:
		fatalf("task %d reference count underflow", t.id)
	}
}

func (t *Task) recycle() {
	gen, state, _ := unpackTaskWord(t.word.Load())
	if state != TaskCompleted {
		fatalf("task %d recycled while %s", t.id, state)
	}
	rt := t.rt
	// bumping the generation invalidates any outstanding wakers
	t.word.Store(packTaskWord(gen+1, TaskCompleted))
	t.next.Store(nil)
	t.joiner.Store(nil)
	t.rt = nil
	t.body = nil
	t.done = nil
	t.value = nil
	t.err = nil
	t.id = 0
	rt.live.Add(-1)
	rt.taskPool.Put(t)
}

// beginPoll guards against concurrent or repeated polls.
func (t *Task) beginPoll() uint32 {
	w := t.word.Load()
	gen, state, _ := unpackTaskWord(w)
	if state != TaskQueued || !t.word.CompareAndSwap(w, packTaskWord(gen, TaskRunning)) {
		fatalf("task %d double poll (state %s)", t.id, state)
	}
	return gen
}

// endPending transitions a running task after a pending poll, returning true
// if the task must be re-queued by the caller.
func (t *Task) endPending(gen uint32, yield bool) bool {
	for {
		w := t.word.Load()
		_, state, notified := unpackTaskWord(w)
		if state != TaskRunning {
			fatalf("task %d pending while %s", t.id, state)
		}
		next := TaskSuspended
		if yield || notified {
			next = TaskQueued
		}
		if t.word.CompareAndSwap(w, packTaskWord(gen, next)) {
			return next == TaskQueued
		}
	}
}

func (t *Task) complete(gen uint32, value any, err error) {
	t.value, t.err = value, err
	t.body = nil
	t.word.Store(packTaskWord(gen, TaskCompleted))
	close(t.done)
	if slot := t.joiner.Swap(nil); slot != nil {
		slot.waker.Wake()
	}
}

func (t *Task) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// wake makes generation gen of the task runnable. A non-nil local scheduler
// (the caller's own core) receives the task in its fast slot, otherwise it is
// injected. Returns true if the wake had any effect.
func (t *Task) wake(gen uint32, local *Scheduler) bool {
	for {
		w := t.word.Load()
		g, state, notified := unpackTaskWord(w)
		if g != gen {
			return false
		}
		switch state {
		case TaskSuspended:
			if !t.word.CompareAndSwap(w, packTaskWord(gen, TaskQueued)) {
				continue
			}
			if local != nil && local.rt == t.rt {
				local.pushFast(t)
			} else {
				t.rt.inject(t)
			}
			return true
		case TaskRunning:
			if notified {
				return false
			}
			if t.word.CompareAndSwap(w, w|taskNotifiedFlag) {
				return true
			}
		default:
			return false
		}
	}
}

// Wake implements [Waker].
func (w taskWaker) Wake() { w.t.wake(w.gen, nil) }

// Clone returns a new reference to the same task.
func (r TaskRef) Clone() TaskRef {
	r.t.retain()
	return r
}

// Release drops the reference. It is safe to call more than once.
func (r *TaskRef) Release() {
	if t := r.t; t != nil {
		r.t = nil
		t.release()
	}
}

// ID returns the referenced task's ID, or 0 if released.
func (r TaskRef) ID() uint64 {
	if r.t == nil {
		return 0
	}
	return r.t.id
}

// State returns the referenced task's state.
func (r TaskRef) State() TaskState { return r.t.State() }
