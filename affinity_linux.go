//go:build linux

package worksteal

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// pinThread restricts the calling OS thread to a single CPU, chosen by
// core index modulo the CPUs available. The goroutine must be locked to
// its thread.
func pinThread(core int) error {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return fmt.Errorf("worksteal: sched_getaffinity: %w", err)
	}
	cpus := make([]int, 0, runtime.NumCPU())
	for cpu := 0; cpu < len(set)*64 && len(cpus) < set.Count(); cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	if len(cpus) == 0 {
		return nil
	}
	var pinned unix.CPUSet
	pinned.Set(cpus[core%len(cpus)])
	if err := unix.SchedSetaffinity(0, &pinned); err != nil {
		return fmt.Errorf("worksteal: sched_setaffinity: %w", err)
	}
	return nil
}
