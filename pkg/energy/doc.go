// Package energy builds and publishes the energy model of CPUs with
// asymmetric compute capacity, so that a scheduler can compare candidate
// CPUs by the power they would draw rather than by raw performance.
//
// # Construction
//
// Model.Init asks the Topology whether the current CPU sits in an asymmetric
// grouping and, if so, walks every possible CPU in ascending order. For each
// CPU not yet covered it asks the Platform for the CPUs sharing its
// frequency rail, records a FrequencyDomain and builds one EnergyModel from
// the lowest CPU of the rail:
//
//	cap = freq * capacity_scale / max_freq
//
// for every operating point, walked in ascending frequency. A higher
// operating point whose (cap<<20)/power ratio does not drop is logged as a
// warning; it is never fatal.
//
// Construction is all or nothing. Every object is reserved through the
// configured Allocator and recorded on an undo list; any failure unwinds the
// list in reverse, leaving the Model empty and disabled.
//
// # Publication
//
// The built state is an immutable snapshot. It is stored behind an atomic
// pointer before the readiness flag is set, so a reader that observes
// Enabled() == true always sees a complete model. Published models are
// never rebuilt or torn down.
//
// # Queries
//
// Enabled, FindCapState, ModelOf, DomainOf and Domains take no locks and do
// not allocate; they are meant for a scheduler's hot path.
//
// Backends for Topology and Platform live in pkg/system/sysfs (Linux sysfs
// and debugfs) and pkg/platform (YAML platform descriptions).
package energy
