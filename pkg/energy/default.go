package energy

import (
	"context"
	"sync/atomic"
)

var defaultModel atomic.Pointer[Model]

func init() { defaultModel.Store(New(nil)) }

// Default returns the process-wide model consulted by the package-level
// helpers.
func Default() *Model { return defaultModel.Load() }

// SetDefault replaces the process-wide model and returns the previous one.
// Readers already holding the previous model keep a consistent view of it.
func SetDefault(m *Model) *Model {
	if m == nil {
		m = New(nil)
	}
	return defaultModel.Swap(m)
}

// Init builds and publishes the process-wide model. See Model.Init.
func Init(ctx context.Context, topo Topology, plat Platform) error {
	return Default().Init(ctx, topo, plat)
}

// Enabled reports whether the process-wide model is published.
func Enabled() bool { return Default().Enabled() }

// FindCapState queries the process-wide model. See Model.FindCapState.
func FindCapState(cpu int, util uint64) CapacityState {
	return Default().FindCapState(cpu, util)
}

// Domains returns the frequency domains of the process-wide model.
func Domains() []FrequencyDomain { return Default().Domains() }
