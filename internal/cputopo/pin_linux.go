// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cputopo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PinThread restricts the calling OS thread to the given logical CPU.
// The caller must have locked the goroutine to its thread first
// (runtime.LockOSThread), otherwise the affinity lands on an arbitrary
// scheduler thread.
func PinThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("cputopo: sched_setaffinity(cpu %d): %w", cpu, err)
	}
	return nil
}
