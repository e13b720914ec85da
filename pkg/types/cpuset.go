package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"k8s.io/utils/cpuset"
)

// MaxCPUs bounds the CPU ids accepted from sysfs files and platform
// descriptions, in the order of the kernel's NR_CPUS.
const MaxCPUs = 1 << 16

// ErrBadCPUList is returned by ParseCPUList for malformed input.
var ErrBadCPUList = errors.New("types: malformed cpu list")

// ParseCPUList parses kernel cpulist notation ("0-3,6", "0 1 2") as found in
// sysfs files such as devices/system/cpu/possible and cpufreq/related_cpus.
// Commas and whitespace both separate entries. An empty string yields an
// empty set. Ids at or above MaxCPUs are rejected before any range is
// expanded.
func ParseCPUList(in string) (cpuset.CPUSet, error) {
	fields := strings.FieldsFunc(in, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for _, f := range fields {
		lo, hi, _ := strings.Cut(f, "-")
		for _, n := range [...]string{lo, hi} {
			if v, err := strconv.Atoi(n); err == nil && v >= MaxCPUs {
				return cpuset.New(), fmt.Errorf("%w: %q exceeds %d cpus", ErrBadCPUList, f, MaxCPUs)
			}
		}
	}
	s, err := cpuset.Parse(strings.Join(fields, ","))
	if err != nil {
		return cpuset.New(), fmt.Errorf("%w: %w", ErrBadCPUList, err)
	}
	return s, nil
}

// First returns the lowest id in s, or -1 when s is empty.
func First(s cpuset.CPUSet) int {
	l := s.List()
	if len(l) == 0 {
		return -1
	}
	return l[0]
}

// Last returns the highest id in s, or -1 when s is empty.
func Last(s cpuset.CPUSet) int {
	l := s.List()
	if len(l) == 0 {
		return -1
	}
	return l[len(l)-1]
}
