package worksteal

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrClosed is returned when operations are attempted on (or interrupted
	// by) a closed runtime, e.g. by [JoinHandle.Await] or [Parker.Park].
	ErrClosed = errors.New("worksteal: runtime closed")

	// ErrAlreadyRunning is returned when [Runtime.Run] is called more than once.
	ErrAlreadyRunning = errors.New("worksteal: runtime is already running")

	// ErrAllocation is returned by spawn operations when no further task cells
	// may be allocated. No partial task is left behind.
	ErrAllocation = errors.New("worksteal: task allocation failed")

	// ErrReleased is returned when using a [JoinHandle] after Release.
	ErrReleased = errors.New("worksteal: join handle released")

	// ErrNilBody is returned when spawning a nil task body.
	ErrNilBody = errors.New("worksteal: nil task body")

	// ErrEmpty indicates that a queue (or steal victim) had nothing to offer.
	// It is a control-flow signal, not a failure.
	ErrEmpty = errors.New("worksteal: empty")

	// ErrBusy indicates that another consumer (or [Stealer]) currently holds
	// exclusive access. It is transient, and should be retried.
	ErrBusy = errors.New("worksteal: busy")

	// ErrInconsistent indicates the [Injector] observed a producer mid-enqueue.
	// It is transient, and should be retried, never treated as [ErrEmpty].
	ErrInconsistent = errors.New("worksteal: inconsistent")

	// ErrTimeout is returned by [Parker.ParkTimeout] if the timeout elapsed
	// without an unpark.
	ErrTimeout = errors.New("worksteal: park timed out")
)

// UnparkError models the expected, recoverable outcomes of a redundant
// unpark, see [UnparkToken.TryUnpark].
type UnparkError uint8

const (
	// NotParked indicates the parker was not sleeping. The notification has
	// been recorded, and will be consumed by the next park.
	NotParked UnparkError = iota + 1

	// AlreadyUnparked indicates a notification was already pending.
	AlreadyUnparked
)

// Error implements the error interface.
func (e UnparkError) Error() string {
	switch e {
	case NotParked:
		return "worksteal: unpark: not parked"
	case AlreadyUnparked:
		return "worksteal: unpark: already unparked"
	default:
		return fmt.Sprintf("worksteal: unpark: unknown (%d)", uint8(e))
	}
}

// PanicError wraps a panic recovered at the task body boundary. It is
// reported to the joiner, via [JoinHandle.Await], instead of halting the
// core that ran the task.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Stack is the stack trace of the panicking goroutine, at recovery.
	Stack []byte
	// TaskID identifies the task that panicked.
	TaskID uint64
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("worksteal: task %d panicked: %v", e.TaskID, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// This enables use with [errors.Is] and [errors.As] for error matching
// through the cause chain.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// fatalf reports a violated runtime invariant (e.g. a double poll). These are
// bugs, not recoverable conditions.
func fatalf(format string, args ...any) {
	panic(fmt.Errorf("worksteal: fatal: "+format, args...))
}
