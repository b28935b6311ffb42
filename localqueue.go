package worksteal

import (
	"sync/atomic"
)

// LocalQueue is a core's bounded run queue: a power-of-two ring of task
// pointers plus a one-task fast slot, checked first by the owner.
//
// Concurrency model:
//   - Exactly one owner may call PushBack, PushFast, PopFront, and StealInto
//     (as the destination).
//   - Any goroutine may steal from the queue, via StealInto, though only one
//     [Stealer] per victim is permitted at a time.
//   - The owner and thieves both consume from head, committing by CAS. Only
//     the owner stores tail.
type LocalQueue struct { // betteralign:ignore
	_    [sizeOfCacheLine]byte
	head atomic.Uint32
	_    [sizeOfCacheLine - sizeOfAtomicUint32]byte
	tail atomic.Uint32
	_    [sizeOfCacheLine - sizeOfAtomicUint32]byte
	fast atomic.Pointer[Task]
	_    [sizeOfCacheLine]byte

	buf  []atomic.Pointer[Task]
	mask uint32

	// batch is owner-only scratch space, for overflow
	batch []*Task

	overflowed atomic.Uint64
}

// NewLocalQueue returns a queue with the given capacity, which must be a
// power of two, at least 2.
func NewLocalQueue(capacity int) *LocalQueue {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		fatalf("local queue capacity %d is not a power of two", capacity)
	}
	return &LocalQueue{
		buf:   make([]atomic.Pointer[Task], capacity),
		mask:  uint32(capacity - 1),
		batch: make([]*Task, capacity/2+1),
	}
}

// Cap returns the capacity of the ring, excluding the fast slot.
func (q *LocalQueue) Cap() int { return len(q.buf) }

// Len returns the number of queued tasks, including the fast slot. It is a
// snapshot, and may be stale by the time it is used.
func (q *LocalQueue) Len() int {
	n := q.ringLen()
	if q.fast.Load() != nil {
		n++
	}
	return int(n)
}

// RemainingSlots returns the number of free ring slots.
func (q *LocalQueue) RemainingSlots() int {
	return len(q.buf) - int(q.ringLen())
}

func (q *LocalQueue) ringLen() uint32 {
	for {
		h := q.head.Load()
		t := q.tail.Load()
		// head re-check guards against a tail read after a racing steal
		if h == q.head.Load() {
			return t - h
		}
	}
}

// PushBack appends t to the tail of the ring. If the ring is full, the oldest
// half, plus t, are moved to overflow as one batch. Owner only.
func (q *LocalQueue) PushBack(t *Task, overflow *Injector) {
	for {
		h := q.head.Load()
		tl := q.tail.Load()
		if tl-h < uint32(len(q.buf)) {
			q.buf[tl&q.mask].Store(t)
			q.tail.Store(tl + 1)
			return
		}
		if q.pushOverflow(t, h, tl, overflow) {
			return
		}
		// a thief freed space, the put above will now succeed
	}
}

// pushOverflow moves half of a full ring, and t, to overflow. It returns
// false if a racing consumer claimed any of the reserved tasks.
func (q *LocalQueue) pushOverflow(t *Task, h, tl uint32, overflow *Injector) bool {
	n := (tl - h) / 2
	if n != uint32(len(q.buf))/2 {
		fatalf("local queue overflow while not full (head %d, tail %d)", h, tl)
	}
	batch := q.batch[:n+1]
	for i := uint32(0); i < n; i++ {
		batch[i] = q.buf[(h+i)&q.mask].Load()
	}
	if !q.head.CompareAndSwap(h, h+n) {
		clear(batch)
		return false
	}
	batch[n] = t
	overflow.enqueueBatch(batch)
	clear(batch)
	q.overflowed.Add(uint64(n + 1))
	return true
}

// PushFast places t in the fast slot. A displaced task is pushed to the back
// of the ring. Owner only.
func (q *LocalQueue) PushFast(t *Task, overflow *Injector) {
	if old := q.fast.Swap(t); old != nil {
		q.PushBack(old, overflow)
	}
}

// PopFront removes the next task, checking the fast slot first, or returns
// nil. Owner only.
func (q *LocalQueue) PopFront() *Task {
	for {
		t := q.fast.Load()
		if t == nil {
			break
		}
		if q.fast.CompareAndSwap(t, nil) {
			return t
		}
	}
	for {
		h := q.head.Load()
		if h == q.tail.Load() {
			return nil
		}
		t := q.buf[h&q.mask].Load()
		if q.head.CompareAndSwap(h, h+1) {
			return t
		}
	}
}

// StealInto moves up to half of q's tasks (rounded up) into dst, bounded by
// maxTasks and by dst's free slots, returning the number moved. The fast slot is
// only taken when the ring is empty. The caller must own dst.
func (q *LocalQueue) StealInto(dst *LocalQueue, maxTasks int) int {
	if q == dst || maxTasks <= 0 {
		return 0
	}
	dt := dst.tail.Load()
	limit := uint32(len(dst.buf)) - (dt - dst.head.Load())
	if maxTasks < int(limit) {
		limit = uint32(maxTasks)
	}
	if limit == 0 {
		return 0
	}
	for {
		h := q.head.Load()
		tl := q.tail.Load()
		n := tl - h
		n -= n / 2
		if n == 0 {
			t := q.fast.Load()
			if t == nil || !q.fast.CompareAndSwap(t, nil) {
				return 0
			}
			dst.buf[dt&dst.mask].Store(t)
			dst.tail.Store(dt + 1)
			return 1
		}
		if n > uint32(len(q.buf))/2 {
			// inconsistent h and tl
			continue
		}
		if n > limit {
			n = limit
		}
		for i := uint32(0); i < n; i++ {
			dst.buf[(dt+i)&dst.mask].Store(q.buf[(h+i)&q.mask].Load())
		}
		if q.head.CompareAndSwap(h, h+n) {
			dst.tail.Store(dt + n)
			return int(n)
		}
		// the reservation was invalidated, retry from scratch
	}
}

// drain removes every task. Owner only.
func (q *LocalQueue) drain() []*Task {
	var tasks []*Task
	for t := q.PopFront(); t != nil; t = q.PopFront() {
		tasks = append(tasks, t)
	}
	return tasks
}
