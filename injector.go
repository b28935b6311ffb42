package worksteal

import (
	"runtime"
	"sync/atomic"
)

// dequeueSpinLimit bounds the retries of transient injector results.
const dequeueSpinLimit = 64

// Injector is the global run queue: an intrusive multi-producer
// single-consumer list, linked through [Task], with a permanent stub node.
//
// Enqueue never blocks, fails, or allocates. Consumers take turns, via a
// try-acquire flag, and observe [ErrBusy] while another holds it.
type Injector struct { // betteralign:ignore
	_    [sizeOfCacheLine]byte
	tail atomic.Pointer[Task]
	_    [sizeOfCacheLine - sizeOfAtomicUint64]byte

	// head is guarded by consuming
	head      *Task
	consuming atomic.Bool
	_         [sizeOfCacheLine]byte

	// length is incremented before a task is linked, so it never
	// under-reports queued work
	length atomic.Int64
	_      [sizeOfCacheLine - sizeOfAtomicUint64]byte

	stub Task
}

// NewInjector returns an empty injector.
func NewInjector() *Injector {
	q := &Injector{}
	q.head = &q.stub
	q.tail.Store(&q.stub)
	return q
}

// Len returns the approximate number of queued tasks.
func (q *Injector) Len() int {
	if n := q.length.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// IsEmpty reports whether the injector appears empty.
func (q *Injector) IsEmpty() bool { return q.length.Load() <= 0 }

// Enqueue appends t. Safe for concurrent use.
func (q *Injector) Enqueue(t *Task) {
	q.length.Add(1)
	q.pushSegment(t, t)
}

// EnqueueMany appends ts, in order, as one linked batch.
func (q *Injector) EnqueueMany(ts ...*Task) {
	q.enqueueBatch(ts)
}

func (q *Injector) enqueueBatch(ts []*Task) {
	if len(ts) == 0 {
		return
	}
	for i := 0; i < len(ts)-1; i++ {
		ts[i].next.Store(ts[i+1])
	}
	q.length.Add(int64(len(ts)))
	q.pushSegment(ts[0], ts[len(ts)-1])
}

// pushSegment links the already-chained first..last onto the tail. Between
// the swap and the link, consumers observe the list as inconsistent.
func (q *Injector) pushSegment(first, last *Task) {
	last.next.Store(nil)
	prev := q.tail.Swap(last)
	prev.next.Store(first)
}

// TryDequeue removes the oldest task. It returns [ErrEmpty], or one of the
// transient [ErrBusy] or [ErrInconsistent], if no task was removed.
func (q *Injector) TryDequeue() (*Task, error) {
	if !q.consuming.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer q.consuming.Store(false)
	return q.dequeueLocked()
}

// dequeueSpin is TryDequeue, retrying transient results.
func (q *Injector) dequeueSpin() (*Task, error) {
	var err error
	for i := 0; i < dequeueSpinLimit; i++ {
		var t *Task
		t, err = q.TryDequeue()
		if err != ErrBusy && err != ErrInconsistent {
			return t, err
		}
		runtime.Gosched()
	}
	return nil, err
}

// dequeueLocked requires consuming to be held.
func (q *Injector) dequeueLocked() (*Task, error) {
	head := q.head
	next := head.next.Load()
	if head == &q.stub {
		if next == nil {
			if q.tail.Load() == head {
				return nil, ErrEmpty
			}
			return nil, ErrInconsistent
		}
		q.head = next
		head = next
		next = next.next.Load()
	}
	if next != nil {
		q.head = next
		return q.take(head), nil
	}
	if q.tail.Load() != head {
		return nil, ErrInconsistent
	}
	// head is the last node, so put the stub behind it
	q.pushSegment(&q.stub, &q.stub)
	if next = head.next.Load(); next != nil {
		q.head = next
		return q.take(head), nil
	}
	return nil, ErrInconsistent
}

func (q *Injector) take(t *Task) *Task {
	t.next.Store(nil)
	q.length.Add(-1)
	return t
}

// dequeueLockedSpin is dequeueLocked, retrying inconsistent results.
func (q *Injector) dequeueLockedSpin() *Task {
	for i := 0; i < dequeueSpinLimit; i++ {
		t, err := q.dequeueLocked()
		if err != ErrInconsistent {
			return t
		}
		runtime.Gosched()
	}
	return nil
}

// TrySteal acquires the consumer role, as a [Stealer]. It fails with
// [ErrBusy] if another consumer is active, or [ErrEmpty].
func (q *Injector) TrySteal() (*Stealer, error) {
	if !q.consuming.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	if q.IsEmpty() {
		q.consuming.Store(false)
		return nil, ErrEmpty
	}
	return &Stealer{injector: q}, nil
}

// Drain removes every task currently linked, retrying transient states.
func (q *Injector) Drain() []*Task {
	var tasks []*Task
	for {
		t, err := q.dequeueSpin()
		if t == nil {
			if err == ErrBusy {
				continue
			}
			return tasks
		}
		tasks = append(tasks, t)
	}
}
