package worksteal

// Context is passed to [Body.Poll]. It is owned by the core running the
// poll, and is only valid until Poll returns.
type Context struct {
	sched *Scheduler
	task  *Task
	gen   uint32
	yield bool
}

func (cx *Context) reset(t *Task, gen uint32) {
	cx.task = t
	cx.gen = gen
	cx.yield = false
}

// Waker returns a waker for the task being polled. It remains valid after
// the poll returns, and becomes a no-op once the task's cell is recycled.
func (cx *Context) Waker() Waker {
	return taskWaker{t: cx.task, gen: cx.gen}
}

// Yield marks the current task to be re-queued, if the poll returns
// [Pending], rather than suspended until woken.
func (cx *Context) Yield() { cx.yield = true }

// Wake wakes w from within the poll. A task waker of the same runtime is
// re-queued on this core's fast slot, avoiding the global queue.
func (cx *Context) Wake(w Waker) {
	if tw, ok := w.(taskWaker); ok {
		tw.t.wake(tw.gen, cx.sched)
		return
	}
	w.Wake()
}

// Spawn starts a new task on this core's local queue.
func (cx *Context) Spawn(body Body) (*JoinHandle, error) {
	return cx.sched.spawn(body)
}

// Core returns the index of the core running the poll.
func (cx *Context) Core() int { return cx.sched.index }

// TaskID returns the ID of the task being polled.
func (cx *Context) TaskID() uint64 { return cx.task.id }

// Runtime returns the runtime the task belongs to.
func (cx *Context) Runtime() *Runtime { return cx.sched.rt }
