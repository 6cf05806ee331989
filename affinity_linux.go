package yoloseg

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetCPUAffinity sets the CPU affinity of the program to run on the
// specified core numbers, eg: []int{4,5,6,7}
func SetCPUAffinity(cores []int) error {

	var set unix.CPUSet
	set.Zero()

	for _, c := range cores {
		set.Set(c)
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// GetCPUAffinity returns the core numbers the program may run on
func GetCPUAffinity() ([]int, error) {

	var set unix.CPUSet

	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	var cores []int

	for c := 0; c < len(set)*64 && len(cores) < set.Count(); c++ {
		if set.IsSet(c) {
			cores = append(cores, c)
		}
	}

	return cores, nil
}
