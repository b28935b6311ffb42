package worksteal

import (
	"context"
)

// JoinHandle awaits the result of a spawned task. It holds a reference to the
// task, which must be returned via Release once the result is no longer
// needed. A JoinHandle must not be used concurrently.
type JoinHandle struct {
	t      *Task
	closed <-chan struct{}
	id     uint64
}

func newJoinHandle(t *Task) *JoinHandle {
	return &JoinHandle{t: t, closed: t.rt.closedCh, id: t.id}
}

// ID returns the ID of the task.
func (h *JoinHandle) ID() uint64 { return h.id }

// Done returns a channel that is closed when the task completes.
func (h *JoinHandle) Done() <-chan struct{} {
	if h.t == nil {
		return nil
	}
	return h.t.done
}

// Ref returns a new owning reference to the task.
func (h *JoinHandle) Ref() TaskRef {
	if h.t == nil {
		return TaskRef{}
	}
	h.t.retain()
	return TaskRef{t: h.t}
}

// Await blocks until the task completes, the runtime closes, or ctx is done.
// A body that panicked yields a [*PanicError].
func (h *JoinHandle) Await(ctx context.Context) (any, error) {
	t := h.t
	if t == nil {
		return nil, ErrReleased
	}
	if t.isDone() {
		return t.value, t.err
	}
	select {
	case <-t.done:
		return t.value, t.err
	case <-h.closed:
		// completion wins ties
		if t.isDone() {
			return t.value, t.err
		}
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll joins from within another task. If the task has not completed, the
// caller's waker is registered, and ok is false.
func (h *JoinHandle) Poll(cx *Context) (value any, ok bool, err error) {
	t := h.t
	if t == nil {
		return nil, true, ErrReleased
	}
	if t.isDone() {
		return t.value, true, t.err
	}
	t.joiner.Store(&joinSlot{waker: cx.Waker()})
	// completion may have raced the registration
	if t.isDone() {
		return t.value, true, t.err
	}
	return nil, false, nil
}

// Release drops the handle's reference to the task. It is safe to call more
// than once.
func (h *JoinHandle) Release() {
	if t := h.t; t != nil {
		h.t = nil
		t.release()
	}
}
