//go:build linux

package pressure

import (
	"golang.org/x/sys/unix"
)

// cpuSetSize is the number of bits in a kernel cpu_set_t.
const cpuSetSize = 1024

// availableCores lists the cores visible to the process's current
// scheduling affinity. Returns nil on failure; the engine then runs
// unpinned.
func availableCores() []int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	var cores []int
	for i := 0; i < cpuSetSize; i++ {
		if set.IsSet(i) {
			cores = append(cores, i)
		}
	}
	return cores
}

// pinCurrentThread binds the calling OS thread to a single core. The
// caller must hold runtime.LockOSThread for the mask to stay with the
// worker that asked for it.
func pinCurrentThread(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
