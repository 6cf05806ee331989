package yoloseg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CoreType specifies the CPU core type
type CoreType int

const (
	FastCores CoreType = 0
	SlowCores CoreType = 1
	AllCores  CoreType = 2
)

// ParseCoreType parses fast|slow|all
func ParseCoreType(s string) (CoreType, error) {

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return FastCores, nil
	case "slow":
		return SlowCores, nil
	case "all", "":
		return AllCores, nil
	}

	return AllCores, fmt.Errorf("unknown core type: %s", s)
}

// platformCores defines the CPU core numbers of big.LITTLE edge platforms
// the models are commonly deployed on, for lookup by key
var platformCores = map[string]map[CoreType][]int{
	"rk3588": {
		FastCores: {4, 5, 6, 7},
		SlowCores: {0, 1, 2, 3},
		AllCores:  {0, 1, 2, 3, 4, 5, 6, 7},
	},
	"rk3582": {
		FastCores: {4, 5},
		SlowCores: {0, 1, 2, 3},
		AllCores:  {0, 1, 2, 3, 4, 5},
	},
	"rk3576": {
		FastCores: {4, 5, 6, 7},
		SlowCores: {0, 1, 2, 3},
		AllCores:  {0, 1, 2, 3, 4, 5, 6, 7},
	},
	"rk3568": {
		FastCores: {0, 1, 2, 3},
		SlowCores: {0, 1, 2, 3},
		AllCores:  {0, 1, 2, 3},
	},
}

// PlatformCores returns the core numbers of the given core type on platform
func PlatformCores(platform string, ct CoreType) ([]int, error) {

	platform = strings.ToLower(strings.TrimSpace(platform))

	if cores, ok := platformCores[platform]; ok {
		if list, ok := cores[ct]; ok {
			return append([]int(nil), list...), nil
		}
	}

	return nil, fmt.Errorf("unknown platform: %s", platform)
}

// ParseCoreList parses a core list such as "0-3,6" into sorted, unique core
// numbers
func ParseCoreList(s string) ([]int, error) {

	seen := make(map[int]bool)

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)

		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")

		start, err := strconv.Atoi(strings.TrimSpace(lo))

		if err != nil || start < 0 {
			return nil, fmt.Errorf("invalid core %q", part)
		}

		end := start

		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))

			if err != nil || end < start {
				return nil, fmt.Errorf("invalid core range %q", part)
			}
		}

		for c := start; c <= end; c++ {
			seen[c] = true
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("no cores given")
	}

	cores := make([]int, 0, len(seen))

	for c := range seen {
		cores = append(cores, c)
	}

	sort.Ints(cores)
	return cores, nil
}

// SetCPUAffinityByPlatform sets the CPU affinity of the program to the
// specified core type of the given platform
func SetCPUAffinityByPlatform(platform string, ct CoreType) error {

	cores, err := PlatformCores(platform, ct)

	if err != nil {
		return err
	}

	return SetCPUAffinity(cores)
}
