//go:build linux

package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"k8s.io/utils/cpuset"

	"github.com/ja7ad/energymodel/pkg/energy"
	"github.com/ja7ad/energymodel/pkg/types"
)

// defaultCapacity is what the kernel reports for cpu_capacity on systems
// without capacity information.
const defaultCapacity = 1024

// Options selects where the kernel interfaces are read from. Tests point
// both roots at fixture trees.
type Options struct {
	// SysRoot is the sysfs mount, "/sys" when empty.
	SysRoot string
	// DebugfsRoot is the debugfs mount. When empty it is discovered for
	// the default SysRoot and taken as SysRoot/kernel/debug otherwise.
	DebugfsRoot string
}

// Platform reads CPU capacities and frequency rails from sysfs and the
// operating points of every performance domain from debugfs
// (energy_model/<pd>/ps:<freq>/{frequency,power}). It implements both
// energy.Topology and energy.Platform.
type Platform struct {
	cpuDir   string
	emDir    string
	possible cpuset.CPUSet
	capacity map[int]uint64
	domains  []*perfDomain
}

type perfDomain struct {
	name string
	cpus cpuset.CPUSet
	opps []energy.OPP // ascending by Freq
}

// Open snapshots the possible CPUs, their capacities and the debugfs
// energy model tables.
func Open(opts Options) (*Platform, error) {
	sysRoot := opts.SysRoot
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	dbg := opts.DebugfsRoot
	if dbg == "" {
		if filepath.Clean(sysRoot) == "/sys" {
			d, err := DiscoverDebugfs()
			if err != nil {
				return nil, err
			}
			dbg = d
		} else {
			dbg = filepath.Join(sysRoot, "kernel", "debug")
		}
	}

	p := &Platform{
		cpuDir:   filepath.Join(sysRoot, "devices", "system", "cpu"),
		emDir:    filepath.Join(dbg, "energy_model"),
		capacity: make(map[int]uint64),
	}

	possible, err := readCPUList(filepath.Join(p.cpuDir, "possible"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPossible, err)
	}
	if possible.IsEmpty() {
		return nil, ErrNoPossible
	}
	p.possible = possible

	for _, cpu := range possible.List() {
		c, err := readUint(filepath.Join(p.cpuPath(cpu), "cpu_capacity"))
		if err != nil || c == 0 {
			c = defaultCapacity
		}
		p.capacity[cpu] = c
	}

	if err := p.loadDomains(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Platform) cpuPath(cpu int) string {
	return filepath.Join(p.cpuDir, "cpu"+strconv.Itoa(cpu))
}

// loadDomains reads every energy_model/<pd> directory carrying a cpus file.
// A missing energy_model directory is not an error: Device then reports
// ErrNoEnergyModel for every CPU.
func (p *Platform) loadDomains() error {
	entries, err := os.ReadDir(p.emDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", p.emDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(p.emDir, e.Name())
		cpus, err := readCPUList(filepath.Join(dir, "cpus"))
		if err != nil {
			continue
		}
		opps, err := readPerfStates(dir)
		if err != nil {
			return fmt.Errorf("energy model %s: %w", e.Name(), err)
		}
		p.domains = append(p.domains, &perfDomain{name: e.Name(), cpus: cpus, opps: opps})
	}
	return nil
}

// readPerfStates parses the ps:<freq> directories of one performance domain.
// The frequency file wins over the directory name when both are present.
func readPerfStates(dir string) ([]energy.OPP, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var opps []energy.OPP
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, "ps:") {
			continue
		}
		ps := filepath.Join(dir, name)
		freq, err := readUint(filepath.Join(ps, "frequency"))
		if err != nil {
			freq, err = strconv.ParseUint(strings.TrimPrefix(name, "ps:"), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad frequency: %w", name, err)
			}
		}
		power, err := readUint(filepath.Join(ps, "power"))
		if err != nil {
			return nil, fmt.Errorf("%s: power: %w", name, err)
		}
		opps = append(opps, energy.OPP{Freq: freq, Power: power})
	}
	sort.Slice(opps, func(i, j int) bool { return opps[i].Freq < opps[j].Freq })
	return opps, nil
}

// CurrentCPU returns the lowest possible CPU.
func (p *Platform) CurrentCPU() int { return types.First(p.possible) }

// PossibleCPUs returns one past the highest possible CPU id.
func (p *Platform) PossibleCPUs() int { return types.Last(p.possible) + 1 }

// HasAsymCapacity reports whether cpu is possible and the possible CPUs do
// not all share one cpu_capacity.
func (p *Platform) HasAsymCapacity(cpu int) bool {
	if !p.possible.Contains(cpu) {
		return false
	}
	ref := p.capacity[cpu]
	for _, c := range p.capacity {
		if c != ref {
			return true
		}
	}
	return false
}

// Capacity returns the cpu_capacity of cpu.
func (p *Platform) Capacity(cpu int) uint64 { return p.capacity[cpu] }

// Device returns the operating-point device of cpu.
func (p *Platform) Device(cpu int) (energy.Device, error) {
	if !p.possible.Contains(cpu) || !exists(p.cpuPath(cpu)) {
		return nil, fmt.Errorf("%w: cpu%d", energy.ErrNoDevice, cpu)
	}
	d := &cpuDevice{p: p, cpu: cpu}
	for _, pd := range p.domains {
		if pd.cpus.Contains(cpu) {
			d.pd = pd
			break
		}
	}
	return d, nil
}

type cpuDevice struct {
	p   *Platform
	cpu int
	pd  *perfDomain
}

func (d *cpuDevice) CapacityScale() uint64 { return d.p.capacity[d.cpu] }

func (d *cpuDevice) OPPCount() (int, error) {
	if d.pd == nil {
		return 0, fmt.Errorf("%w: cpu%d", ErrNoEnergyModel, d.cpu)
	}
	return len(d.pd.opps), nil
}

func (d *cpuDevice) FloorOPP(freq uint64) (energy.OPP, error) {
	if d.pd == nil {
		return energy.OPP{}, fmt.Errorf("%w: cpu%d", ErrNoEnergyModel, d.cpu)
	}
	opps := d.pd.opps
	i := sort.Search(len(opps), func(i int) bool { return opps[i].Freq > freq })
	if i == 0 {
		return energy.OPP{}, fmt.Errorf("%w: cpu%d floor %d", ErrNoOPP, d.cpu, freq)
	}
	return opps[i-1], nil
}

func (d *cpuDevice) CeilOPP(freq uint64) (energy.OPP, error) {
	if d.pd == nil {
		return energy.OPP{}, fmt.Errorf("%w: cpu%d", ErrNoEnergyModel, d.cpu)
	}
	opps := d.pd.opps
	i := sort.Search(len(opps), func(i int) bool { return opps[i].Freq >= freq })
	if i == len(opps) {
		return energy.OPP{}, fmt.Errorf("%w: cpu%d ceil %d", ErrNoOPP, d.cpu, freq)
	}
	return opps[i], nil
}

// SharingCPUs prefers cpufreq/related_cpus and falls back to the CPUs of
// the energy model performance domain.
func (d *cpuDevice) SharingCPUs() (cpuset.CPUSet, error) {
	related, err := readCPUList(filepath.Join(d.p.cpuPath(d.cpu), "cpufreq", "related_cpus"))
	if err == nil && !related.IsEmpty() {
		return related, nil
	}
	if d.pd != nil {
		return d.pd.cpus.Clone(), nil
	}
	if err == nil {
		err = fmt.Errorf("cpu%d: empty related_cpus", d.cpu)
	}
	return cpuset.New(), err
}
