package energy

import (
	"context"
	"fmt"
	"sync/atomic"

	"k8s.io/utils/cpuset"

	"github.com/ja7ad/energymodel/pkg/types"
)

// State is the lifecycle stage of a Model.
type State int32

const (
	StateUninitialized State = iota
	StateBuilding
	StatePublished
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilding:
		return "building"
	case StatePublished:
		return "published"
	case StateRolledBack:
		return "rolled-back"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Model is the container of a published energy model. Init builds and
// publishes it once; the query methods read it without locking from any
// number of goroutines.
type Model struct {
	cfg *Config

	state   atomic.Int32
	snap    atomic.Pointer[snapshot]
	enabled atomic.Bool
}

// snapshot is the immutable published state. Domain i owns models[i];
// cpuDomain maps a CPU id to its domain index, -1 when unmodelled.
type snapshot struct {
	domains   []FrequencyDomain
	models    []*EnergyModel
	cpuDomain []int32
}

// New returns an empty Model. Nil fields of cfg fall back to defaults.
func New(cfg *Config) *Model {
	merged := *_defaultConfig()
	if cfg != nil {
		if cfg.Logger != nil {
			merged.Logger = cfg.Logger
		}
		if cfg.Allocator != nil {
			merged.Allocator = cfg.Allocator
		}
		if cfg.Observer != nil {
			merged.Observer = cfg.Observer
		}
	}
	return &Model{cfg: &merged}
}

// State returns the current lifecycle stage.
func (m *Model) State() State { return State(m.state.Load()) }

// Init builds an energy model for every possible CPU and publishes it.
//
// Init returns nil without touching the model when the topology is not
// asymmetric. On any fatal failure everything built so far is released, the
// model stays disabled and the returned error wraps ErrInitFailed together
// with the cause. Init may be retried after a failure but never runs again
// once a model is published, nor concurrently with itself.
func (m *Model) Init(ctx context.Context, topo Topology, plat Platform) error {
	prev, err := m.enter()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			m.state.Store(int32(StateRolledBack))
			panic(r)
		}
	}()

	log := m.cfg.Logger
	cpu := topo.CurrentCPU()
	if !topo.HasAsymCapacity(cpu) {
		log.Debug("energy: capacities are symmetric, model not needed", "cpu", cpu)
		m.state.Store(int32(prev))
		return nil
	}

	s, err := m.stage(ctx, topo, plat)
	if err != nil {
		m.state.Store(int32(StateRolledBack))
		log.Error("energy: initialization failed", "err", err)
		m.cfg.Observer.BuildFailed(err)
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	// Everything reachable from s is written before the flag becomes true.
	m.snap.Store(s)
	m.enabled.Store(true)
	m.state.Store(int32(StatePublished))

	log.Info("energy: model published", "domains", len(s.domains), "cpus", len(s.cpuDomain))
	m.cfg.Observer.Published(len(s.domains), len(s.cpuDomain))
	return nil
}

// enter moves the model into StateBuilding and returns the state it left.
func (m *Model) enter() (State, error) {
	for {
		cur := State(m.state.Load())
		switch cur {
		case StatePublished:
			return cur, ErrAlreadyPublished
		case StateBuilding:
			return cur, ErrBuildInProgress
		}
		if m.state.CompareAndSwap(int32(cur), int32(StateBuilding)) {
			return cur, nil
		}
	}
}

// stagedBuild accumulates the undo steps of every reservation made while a
// snapshot is assembled.
type stagedBuild struct {
	undo []func()
}

func (b *stagedBuild) push(fn func()) { b.undo = append(b.undo, fn) }

func (b *stagedBuild) rollback() {
	for i := len(b.undo) - 1; i >= 0; i-- {
		b.undo[i]()
	}
	b.undo = nil
}

// stage assembles a complete snapshot or, on failure, releases every
// reservation it made and returns the cause.
func (m *Model) stage(ctx context.Context, topo Topology, plat Platform) (_ *snapshot, err error) {
	alloc := m.cfg.Allocator
	var b stagedBuild
	defer func() {
		if r := recover(); r != nil {
			b.rollback()
			panic(r)
		}
		if err != nil {
			b.rollback()
		}
	}()

	n := topo.PossibleCPUs()
	if n <= 0 {
		return nil, ErrNoCPUs
	}
	if n > types.MaxCPUs {
		return nil, fmt.Errorf("%w: %d possible cpus, at most %d", ErrTooManyCPUs, n, types.MaxCPUs)
	}
	if err := alloc.Alloc(AllocCPUTable, n); err != nil {
		return nil, fmt.Errorf("cpu table: %w", err)
	}
	b.push(func() { alloc.Free(AllocCPUTable, n) })

	s := &snapshot{cpuDomain: make([]int32, n)}
	for i := range s.cpuDomain {
		s.cpuDomain[i] = -1
	}

	for cpu := 0; cpu < n; cpu++ {
		if s.cpuDomain[cpu] >= 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dev, err := plat.Device(cpu)
		if err != nil {
			return nil, fmt.Errorf("cpu%d: %w", cpu, err)
		}
		if dev == nil {
			return nil, fmt.Errorf("cpu%d: %w", cpu, ErrNoDevice)
		}
		span, err := dev.SharingCPUs()
		if err != nil {
			return nil, fmt.Errorf("cpu%d: %w: %w", cpu, ErrSpan, err)
		}
		if err := checkSpan(s, cpu, span); err != nil {
			return nil, err
		}

		if err := alloc.Alloc(AllocDomain, 1); err != nil {
			return nil, fmt.Errorf("cpu%d: domain: %w", cpu, err)
		}
		s.domains = append(s.domains, FrequencyDomain{ID: len(s.domains), Span: span.Clone()})
		b.push(func() {
			s.domains = s.domains[:len(s.domains)-1]
			alloc.Free(AllocDomain, 1)
		})

		// One table per rail, shared by every CPU of the span. This holds
		// as long as the CPUs of a rail share a micro-architecture.
		em, err := m.buildEnergyModel(plat, types.First(span))
		if err != nil {
			return nil, err
		}
		s.models = append(s.models, em)
		b.push(func() {
			s.models = s.models[:len(s.models)-1]
			m.freeEnergyModel(em)
		})

		idx := int32(len(s.domains) - 1)
		for _, c := range span.List() {
			s.cpuDomain[c] = idx
		}
	}

	b.undo = nil
	return s, nil
}

// checkSpan rejects spans that would leave cpu unmodelled or make two
// domains overlap.
func checkSpan(s *snapshot, cpu int, span cpuset.CPUSet) error {
	if !span.Contains(cpu) {
		return fmt.Errorf("cpu%d: %w: span %s does not contain it", cpu, ErrSpan, span)
	}
	ids := span.List()
	if ids[0] < 0 {
		return fmt.Errorf("cpu%d: %w: span %s holds a negative id", cpu, ErrSpan, span)
	}
	if last := ids[len(ids)-1]; last >= len(s.cpuDomain) {
		return fmt.Errorf("cpu%d: %w: span %s exceeds %d possible cpus", cpu, ErrSpan, span, len(s.cpuDomain))
	}
	for _, c := range ids {
		if s.cpuDomain[c] >= 0 {
			return fmt.Errorf("cpu%d: %w: span %s overlaps domain %d", cpu, ErrSpan, span, s.cpuDomain[c])
		}
	}
	return nil
}
