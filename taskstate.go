package worksteal

// TaskState is the lifecycle state of a [Task].
//
// Transitions:
//
//	TaskQueued → TaskRunning       [poll start, CAS]
//	TaskRunning → TaskQueued       [poll pending, yielded or notified]
//	TaskRunning → TaskSuspended    [poll pending]
//	TaskRunning → TaskCompleted    [poll ready]
//	TaskSuspended → TaskQueued     [wake]
//
// A wake that arrives while the task is TaskRunning is recorded in a separate
// notified bit, and consumed when the poll returns pending.
type TaskState uint8

const (
	// TaskQueued indicates the task sits in exactly one queue, or is about to.
	TaskQueued TaskState = iota
	// TaskRunning indicates the task is being polled by exactly one core.
	TaskRunning
	// TaskSuspended indicates the task is waiting for a wake.
	TaskSuspended
	// TaskCompleted indicates the task produced its result.
	TaskCompleted
)

// String returns a human-readable representation of the state.
func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "Queued"
	case TaskRunning:
		return "Running"
	case TaskSuspended:
		return "Suspended"
	case TaskCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// lifecycle word layout: generation<<32 | notified<<2 | state
const (
	taskStateMask    = 0x3
	taskNotifiedFlag = 0x4
)

func packTaskWord(gen uint32, state TaskState) uint64 {
	return uint64(gen)<<32 | uint64(state)
}

func unpackTaskWord(w uint64) (gen uint32, state TaskState, notified bool) {
	return uint32(w >> 32), TaskState(w & taskStateMask), w&taskNotifiedFlag != 0
}
