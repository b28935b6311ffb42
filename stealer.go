package worksteal

// Stealer is an exclusive, short-lived capability to move tasks from one
// victim, either a [Scheduler] or the [Injector], into the caller's own
// scheduler. At most one Stealer per victim exists at a time. It must be
// released.
type Stealer struct {
	victim   *Scheduler
	injector *Injector
}

// SpawnN moves up to maxTasks tasks into dst, returning the number moved. The
// caller must own dst.
func (s *Stealer) SpawnN(dst *Scheduler, maxTasks int) int {
	var n int
	switch {
	case s.victim != nil:
		if s.victim == dst {
			return 0
		}
		n = s.victim.queue.StealInto(dst.queue, maxTasks)
	case s.injector != nil:
		limit := min(maxTasks, dst.queue.RemainingSlots())
		for n < limit {
			t := s.injector.dequeueLockedSpin()
			if t == nil {
				break
			}
			dst.queue.PushBack(t, s.injector)
			n++
		}
	default:
		fatalf("use of released stealer")
	}
	if n > 0 {
		dst.stolen.Add(uint64(n))
	}
	return n
}

// SpawnHalf moves about half of the victim's tasks into dst.
func (s *Stealer) SpawnHalf(dst *Scheduler) int {
	if s.injector != nil {
		return s.SpawnN(dst, (s.injector.Len()+1)/2)
	}
	// LocalQueue.StealInto already bounds to half
	return s.SpawnN(dst, dst.queue.Cap())
}

// Release returns exclusive access to the victim. It is safe to call more
// than once.
func (s *Stealer) Release() {
	switch {
	case s.victim != nil:
		s.victim.stealing.Store(false)
		s.victim = nil
	case s.injector != nil:
		s.injector.consuming.Store(false)
		s.injector = nil
	}
}
