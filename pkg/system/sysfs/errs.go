package sysfs

import "errors"

var (
	// ErrNoEnergyModel indicates no debugfs energy_model performance domain
	// covers a CPU.
	ErrNoEnergyModel = errors.New("sysfs: no energy model for cpu")

	// ErrNoOPP indicates no operating point satisfies a floor/ceil search.
	ErrNoOPP = errors.New("sysfs: no matching opp")

	// ErrNoPossible indicates devices/system/cpu/possible was missing or empty.
	ErrNoPossible = errors.New("sysfs: no possible cpus")

	// ErrNoDebugfs indicates debugfs is not mounted where it was expected.
	ErrNoDebugfs = errors.New("sysfs: debugfs not mounted")
)
