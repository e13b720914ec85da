package energy

import "k8s.io/utils/cpuset"

// OPP is a discrete operating point: a frequency and the power drawn there.
// Units are whatever the platform reports (typically kHz and mW); only
// their ratios matter to the model.
type OPP struct {
	Freq  uint64
	Power uint64
}

// Topology answers the scheduler-topology questions asked once per Init.
type Topology interface {
	// CurrentCPU returns the CPU on whose behalf the model is built.
	CurrentCPU() int
	// HasAsymCapacity reports whether cpu belongs to a grouping of CPUs
	// with differing capacities.
	HasAsymCapacity(cpu int) bool
	// PossibleCPUs returns the number of CPU ids, 0..n-1, to be modelled.
	PossibleCPUs() int
}

// Platform resolves the operating-point device of a CPU.
type Platform interface {
	Device(cpu int) (Device, error)
}

// Device exposes the operating points of one CPU.
type Device interface {
	// CapacityScale returns the architecture capacity of the CPU at its
	// highest operating point.
	CapacityScale() uint64
	// OPPCount returns the number of available operating points.
	OPPCount() (int, error)
	// FloorOPP returns the highest operating point with Freq <= freq.
	FloorOPP(freq uint64) (OPP, error)
	// CeilOPP returns the lowest operating point with Freq >= freq.
	CeilOPP(freq uint64) (OPP, error)
	// SharingCPUs returns every CPU on the same frequency rail, itself included.
	SharingCPUs() (cpuset.CPUSet, error)
}

// Observer is notified of model construction outcomes.
type Observer interface {
	Published(domains, cpus int)
	BuildFailed(err error)
	EfficiencyWarning(cpu, state int)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) Published(int, int)         {}
func (NopObserver) BuildFailed(error)          {}
func (NopObserver) EfficiencyWarning(int, int) {}
