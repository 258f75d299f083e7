package streamdetect

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
	"unsafe"
)

// SetCPUAffinity sets the CPU Affinity mask of the calling thread to run on
// the specified cores
func SetCPUAffinity(mask uintptr) error {

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// GetCPUAffinity gets the current CPU Affinity mask of the calling thread
func GetCPUAffinity() (uintptr, error) {

	var mask uintptr

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_GETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return 0, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	return mask, nil
}

// CPUCoreMask calculates the core mask by passing in the CPU core numbers as a
// slice, eg: []int{4,5,6,7}
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}

// ParseCPUList parses a core list in the form used by taskset, eg: "0,4-7"
func ParseCPUList(list string) ([]int, error) {

	var cores []int

	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")

		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid core %q: %w", part, err)
		}

		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("invalid core range %q: %w", part, err)
			}
		}

		if first < 0 || last < first || last >= int(8*unsafe.Sizeof(uintptr(0))) {
			return nil, fmt.Errorf("core range %q out of bounds", part)
		}

		for c := first; c <= last; c++ {
			cores = append(cores, c)
		}
	}

	return cores, nil
}
