package worksteal

import (
	"sync/atomic"
)

// RuntimeState represents the lifecycle state of a [Runtime].
//
// State Machine:
//
//	StateIdle (0) → StateRunning (1)        [Run()]
//	StateIdle (0) → StateTerminated (3)     [Close() before Run()]
//	StateRunning (1) → StateTerminating (2) [Close(), Shutdown(), ctx done]
//	StateTerminating (2) → StateTerminated (3) [all workers exited]
//	StateTerminated (3) → (terminal)
//
// Use TryTransition (CAS) for every transition other than the final store of
// StateTerminated.
type RuntimeState uint64

const (
	// StateIdle indicates the runtime has been created but not started.
	StateIdle RuntimeState = iota
	// StateRunning indicates the workers are running.
	StateRunning
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates all workers have exited.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s RuntimeState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// runtimeState is a lock-free state machine with cache-line padding.
type runtimeState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte
	v atomic.Uint64
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte
}

func (s *runtimeState) Load() RuntimeState {
	return RuntimeState(s.v.Load())
}

func (s *runtimeState) Store(state RuntimeState) {
	s.v.Store(uint64(state))
}

func (s *runtimeState) TryTransition(from, to RuntimeState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// TransitionAny attempts each of validFrom in turn, returning the state it
// transitioned from, and true, on success.
func (s *runtimeState) TransitionAny(validFrom []RuntimeState, to RuntimeState) (RuntimeState, bool) {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return from, true
		}
	}
	return 0, false
}
