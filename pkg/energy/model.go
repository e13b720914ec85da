package energy

import (
	"log/slog"
	"math"

	"k8s.io/utils/cpuset"
)

// effShift is the fixed-point shift applied to capacity before dividing by
// power when comparing the efficiency of two operating points.
const effShift = 20

// CapacityState is one row of an energy model: the normalized compute
// capacity of a CPU at an operating point and the power it draws there.
type CapacityState struct {
	Cap   uint64 `json:"cap"`
	Power uint64 `json:"power"`
}

// EnergyModel is the ordered capacity/power table shared by every CPU of a
// frequency domain. States are sorted by non-decreasing Cap and never change
// once the model is published.
type EnergyModel struct {
	States []CapacityState `json:"cap_states"`
}

// NrCapStates returns the number of capacity states.
func (em *EnergyModel) NrCapStates() int { return len(em.States) }

// MaxCap returns the capacity of the highest state, or 0 for an empty model.
func (em *EnergyModel) MaxCap() uint64 {
	if len(em.States) == 0 {
		return 0
	}
	return em.States[len(em.States)-1].Cap
}

// Efficiency returns the fixed-point capacity/power ratio of state i.
func (em *EnergyModel) Efficiency(i int) uint64 {
	return efficiency(em.States[i])
}

// FindCapState returns the lowest state able to serve util with a 25%
// margin, or the highest state when none can. The model must not be empty.
func (em *EnergyModel) FindCapState(util uint64) CapacityState {
	last := em.States[len(em.States)-1]
	if util > math.MaxUint64-util>>2 {
		return last
	}
	util += util >> 2
	for _, cs := range em.States {
		if cs.Cap >= util {
			return cs
		}
	}
	return last
}

func efficiency(cs CapacityState) uint64 {
	return (cs.Cap << effShift) / cs.Power
}

// FrequencyDomain is a group of CPUs that change frequency together.
type FrequencyDomain struct {
	ID   int
	Span cpuset.CPUSet
}

// Config holds the collaborators used while building a model.
// Nil fields are replaced with defaults by New.
type Config struct {
	Logger    *slog.Logger
	Allocator Allocator
	Observer  Observer
}

// _defaultConfig returns a Config logging to slog.Default, reserving from
// the heap and observing nothing.
func _defaultConfig() *Config {
	return &Config{
		Logger:    slog.Default(),
		Allocator: HeapAllocator{},
		Observer:  NopObserver{},
	}
}
