package energy

// Enabled reports whether a complete model has been published. It is safe to
// call at any time from any goroutine.
func (m *Model) Enabled() bool { return m.enabled.Load() }

// published returns the snapshot once the readiness flag is set.
func (m *Model) published() *snapshot {
	if !m.enabled.Load() {
		return nil
	}
	return m.snap.Load()
}

// ModelOf returns the energy model shared by cpu's frequency domain, or nil
// when no model is published or cpu is not modelled.
func (m *Model) ModelOf(cpu int) *EnergyModel {
	s := m.published()
	if s == nil || cpu < 0 || cpu >= len(s.cpuDomain) {
		return nil
	}
	idx := s.cpuDomain[cpu]
	if idx < 0 {
		return nil
	}
	return s.models[idx]
}

// FindCapState returns the lowest capacity state of cpu able to serve util
// with a 25% margin, falling back to the highest state. It returns the zero
// CapacityState when cpu has no published model.
func (m *Model) FindCapState(cpu int, util uint64) CapacityState {
	em := m.ModelOf(cpu)
	if em == nil || len(em.States) == 0 {
		return CapacityState{}
	}
	return em.FindCapState(util)
}

// DomainOf returns the frequency domain holding cpu.
func (m *Model) DomainOf(cpu int) (FrequencyDomain, bool) {
	s := m.published()
	if s == nil || cpu < 0 || cpu >= len(s.cpuDomain) || s.cpuDomain[cpu] < 0 {
		return FrequencyDomain{}, false
	}
	return s.domains[s.cpuDomain[cpu]], true
}

// Domains returns the published frequency domains. The slice is shared and
// must not be modified.
func (m *Model) Domains() []FrequencyDomain {
	s := m.published()
	if s == nil {
		return nil
	}
	return s.domains
}

// ForEachDomain calls fn with every published domain and its model until fn
// returns false.
func (m *Model) ForEachDomain(fn func(FrequencyDomain, *EnergyModel) bool) {
	s := m.published()
	if s == nil {
		return
	}
	for i, d := range s.domains {
		if !fn(d, s.models[i]) {
			return
		}
	}
}
