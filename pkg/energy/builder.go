package energy

import (
	"fmt"
	"math"
)

// buildEnergyModel builds the capacity/power table of cpu from its operating
// points. It touches no published state: on failure every reservation made
// here is released and a nil model is returned.
func (m *Model) buildEnergyModel(plat Platform, cpu int) (*EnergyModel, error) {
	log := m.cfg.Logger
	alloc := m.cfg.Allocator

	dev, err := plat.Device(cpu)
	if err != nil {
		return nil, fmt.Errorf("cpu%d: %w", cpu, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("cpu%d: %w", cpu, ErrNoDevice)
	}

	count, err := dev.OPPCount()
	if err != nil {
		return nil, fmt.Errorf("cpu%d: %w: %w", cpu, ErrNoOPPs, err)
	}
	if count <= 0 {
		return nil, fmt.Errorf("cpu%d: %w: count %d", cpu, ErrNoOPPs, count)
	}

	top, err := dev.FloorOPP(math.MaxUint64)
	if err != nil {
		return nil, fmt.Errorf("cpu%d: %w: %w", cpu, ErrNoMaxFreq, err)
	}
	maxFreq := top.Freq
	if maxFreq == 0 {
		return nil, fmt.Errorf("cpu%d: %w", cpu, ErrNoMaxFreq)
	}
	capScale := dev.CapacityScale()

	if err := alloc.Alloc(AllocModel, 1); err != nil {
		return nil, fmt.Errorf("cpu%d: %w", cpu, err)
	}
	if err := alloc.Alloc(AllocCapStates, count); err != nil {
		alloc.Free(AllocModel, 1)
		return nil, fmt.Errorf("cpu%d: %w", cpu, err)
	}
	em := &EnergyModel{States: make([]CapacityState, count)}

	fail := func(err error) (*EnergyModel, error) {
		m.freeEnergyModel(em)
		return nil, err
	}

	prevEff := uint64(math.MaxUint64)
	var freq uint64
	for i := 0; i < count; i, freq = i+1, freq+1 {
		opp, err := dev.CeilOPP(freq)
		if err != nil {
			return fail(fmt.Errorf("cpu%d: opp %d: %w: %w", cpu, i+1, ErrOPPQuery, err))
		}
		freq = opp.Freq
		if opp.Power == 0 || freq == 0 {
			return fail(fmt.Errorf("cpu%d: opp %d: %w", cpu, i+1, ErrZeroOPP))
		}

		cs := CapacityState{
			Cap:   freq * capScale / maxFreq,
			Power: opp.Power,
		}
		em.States[i] = cs

		// Efficiency should drop as frequency grows on a sane platform.
		eff := efficiency(cs)
		if i > 0 && eff >= prevEff {
			log.Warn("energy: cap/pwr of higher opp not lower",
				"cpu", cpu, "opp", i, "prev_opp", i-1, "eff", eff, "prev_eff", prevEff)
			m.cfg.Observer.EfficiencyWarning(cpu, i)
		}
		prevEff = eff
	}

	return em, nil
}

// freeEnergyModel releases the reservations of one model built by
// buildEnergyModel.
func (m *Model) freeEnergyModel(em *EnergyModel) {
	if em == nil {
		return
	}
	m.cfg.Allocator.Free(AllocCapStates, len(em.States))
	m.cfg.Allocator.Free(AllocModel, 1)
	em.States = nil
}
