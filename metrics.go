package worksteal

// Metrics is a point-in-time snapshot of runtime statistics. Counters are
// read individually, without a global lock, so a snapshot taken under load
// may be internally inconsistent by a few events.
//
// Example:
//
//	m := rt.Metrics()
//	fmt.Printf("polled=%d stolen=%d injector=%d\n",
//		m.Polled, m.Stolen, m.InjectorLen)
type Metrics struct {
	// Cores holds per-core statistics, indexed by core.
	Cores []CoreMetrics

	Spawned    uint64
	Polled     uint64
	Completed  uint64
	Panicked   uint64
	Stolen     uint64
	Overflowed uint64
	Parks      uint64
	Unparks    uint64

	// LiveTasks is the number of allocated task cells.
	LiveTasks int64
	// PendingTasks is the number of spawned tasks yet to complete.
	PendingTasks int64

	InjectorLen int
	Parked      int
	Searching   int
}

// CoreMetrics holds the statistics of one core.
type CoreMetrics struct {
	Index int
	// Queued is the local queue length, including the fast slot.
	Queued int
	// Current is the ID of the task being polled, or 0.
	Current uint64

	Spawned    uint64
	Polled     uint64
	Completed  uint64
	Panicked   uint64
	Stolen     uint64
	Overflowed uint64
	Parks      uint64
	Unparks    uint64
	Parked     bool
}

// Metrics returns a snapshot of the runtime's statistics.
func (rt *Runtime) Metrics() Metrics {
	m := Metrics{
		Cores:        make([]CoreMetrics, len(rt.workers)),
		Spawned:      rt.spawned.Load(),
		LiveTasks:    rt.live.Load(),
		PendingTasks: rt.pending.Load(),
		InjectorLen:  rt.injector.Len(),
		Parked:       int(rt.parked.Load()),
		Searching:    int(rt.searching.Load()),
	}
	for i, w := range rt.workers {
		s := w.sched
		c := CoreMetrics{
			Index:      i,
			Queued:     s.queue.Len(),
			Current:    s.currentID.Load(),
			Spawned:    s.spawned.Load(),
			Polled:     s.polled.Load(),
			Completed:  s.completed.Load(),
			Panicked:   s.panicked.Load(),
			Stolen:     s.stolen.Load(),
			Overflowed: s.queue.overflowed.Load(),
			Parks:      w.parker.parks.Load(),
			Unparks:    w.parker.unparks.Load(),
			Parked:     w.parker.IsParked(),
		}
		m.Cores[i] = c
		m.Spawned += c.Spawned
		m.Polled += c.Polled
		m.Completed += c.Completed
		m.Panicked += c.Panicked
		m.Stolen += c.Stolen
		m.Overflowed += c.Overflowed
		m.Parks += c.Parks
		m.Unparks += c.Unparks
	}
	return m
}
