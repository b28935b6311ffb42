// Package worksteal provides a cooperative, work-stealing task runtime, for
// running large numbers of small, non-blocking units of work ("tasks") across
// a fixed set of cores.
//
// # Architecture
//
// A [Runtime] owns one [Worker] per core. Each worker drives a [Scheduler],
// which owns a bounded [LocalQueue] (a ring buffer plus a single "fast slot").
// Work submitted from outside any core is placed on the shared [Injector], an
// unbounded intrusive queue, which also receives the overflow of full local
// queues.
//
// A worker repeatedly ticks its scheduler, polling a bounded batch of tasks.
// When its local queue runs dry it attempts to steal, first from the
// injector, then from randomly chosen peers (see [Stealer]). If that also
// fails the worker parks (see [Parker]) until another core, or an external
// event source, unparks it.
//
// # Tasks
//
// A task body implements [Body], a single Poll operation returning either
// [Ready] (or [Fail]) or [Pending]. A body that returns Pending must first
// arrange for its [Waker] to be called, once progress is possible. Calling
// [Context.Yield] prior to returning Pending requests that the task be polled
// again, without waiting for a wake.
//
//	rt, err := worksteal.New(worksteal.WithCores(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go rt.Run(context.Background())
//	defer rt.Close()
//
//	h, err := rt.SpawnFunc(func(cx *worksteal.Context) worksteal.Poll {
//	    return worksteal.Ready(42)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Release()
//
//	v, err := h.Await(context.Background())
//
// # Thread Safety
//
//   - [Runtime.Spawn], [Waker.Wake], [UnparkToken.TryUnpark] and [Runtime.WakeOne]
//     are safe to call from any goroutine.
//   - [Scheduler] and [LocalQueue] push/pop operations must only be called by the
//     owning core. Stealing is available to any core, via [Stealer].
//   - A [Context] is only valid for the duration of the Poll call it was passed to.
//
// # Error Types
//
//   - [ErrEmpty], [ErrBusy], [ErrInconsistent]: transient or control-flow results
//     from queues and stealers.
//   - [UnparkError]: redundant unpark notifications.
//   - [PanicError]: a recovered task body panic, reported via [JoinHandle.Await].
//   - [ErrClosed]: the runtime was closed.
package worksteal
