//go:build linux

package runtime

import "golang.org/x/sys/unix"

// pinCurrentThread pins the calling (already OS-thread-locked) goroutine to
// cpu via sched_setaffinity, the same call the teacher's queue.Runner.ioLoop
// makes before touching its io_uring.
func pinCurrentThread(cpu int) error {
	var mask unix.CPUSet
	mask.Set(cpu)
	return unix.SchedSetaffinity(0, &mask)
}
