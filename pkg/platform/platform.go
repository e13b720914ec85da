// Package platform describes a CPU platform in YAML: its frequency domains,
// their capacity and their operating points. A Description implements both
// energy.Topology and energy.Platform, which makes it a stand-in for the
// kernel interfaces when replaying a vendor table or testing a scheduler.
//
// Example:
//
//	current_cpu: 0
//	domains:
//	  - name: little
//	    cpus: "0-3"
//	    capacity: 446
//	    opps:
//	      - {freq: 500000, power: 26}
//	      - {freq: 1000000, power: 70}
//	  - name: big
//	    cpus: "4-7"
//	    capacity: 1024
//	    opps:
//	      - {freq: 1000000, power: 400}
//	      - {freq: 2000000, power: 1200}
package platform

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
	"k8s.io/utils/cpuset"

	"github.com/ja7ad/energymodel/pkg/energy"
	"github.com/ja7ad/energymodel/pkg/types"
)

// ErrInvalid wraps every validation failure of a Description.
var ErrInvalid = errors.New("platform: invalid description")

// ErrNoOPP indicates no operating point satisfies a floor/ceil search.
var ErrNoOPP = errors.New("platform: no matching opp")

// OPP is one operating point of a domain.
type OPP struct {
	Freq  uint64 `yaml:"freq" json:"freq"`
	Power uint64 `yaml:"power" json:"power"`
}

// Domain is a set of CPUs sharing one frequency rail.
type Domain struct {
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	CPUs     string `yaml:"cpus" json:"cpus"`
	Capacity uint64 `yaml:"capacity" json:"capacity"`
	OPPs     []OPP  `yaml:"opps" json:"opps"`

	span cpuset.CPUSet
	opps []energy.OPP
}

// Description is a whole platform.
type Description struct {
	// Current is the CPU asked about asymmetry; the lowest described CPU
	// when unset.
	Current *int `yaml:"current_cpu,omitempty" json:"current_cpu,omitempty"`
	// Possible is the number of CPU ids to model; one past the highest
	// described CPU when zero.
	Possible int `yaml:"possible_cpus,omitempty" json:"possible_cpus,omitempty"`
	// Asymmetric overrides the capacity comparison when set.
	Asymmetric *bool    `yaml:"asymmetric,omitempty" json:"asymmetric,omitempty"`
	Domains    []Domain `yaml:"domains" json:"domains"`

	cpus  cpuset.CPUSet
	byCPU map[int]int
}

// Load reads and validates the description stored at path.
func Load(path string) (*Description, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML description.
func Parse(b []byte) (*Description, error) {
	var d Description
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the structure of the description and prepares it for
// use. Operating point values are not checked: rejecting zero power or
// frequency is the model builder's job.
func (d *Description) Validate() error {
	if len(d.Domains) == 0 {
		return fmt.Errorf("%w: no domains", ErrInvalid)
	}
	d.cpus = cpuset.New()
	d.byCPU = make(map[int]int)

	for i := range d.Domains {
		dom := &d.Domains[i]
		span, err := types.ParseCPUList(dom.CPUs)
		if err != nil {
			return fmt.Errorf("%w: domain %d: %w", ErrInvalid, i, err)
		}
		if span.IsEmpty() {
			return fmt.Errorf("%w: domain %d: empty cpus", ErrInvalid, i)
		}
		if !span.Intersection(d.cpus).IsEmpty() {
			return fmt.Errorf("%w: domain %d: cpus %s overlap another domain", ErrInvalid, i, span)
		}
		if dom.Capacity == 0 {
			return fmt.Errorf("%w: domain %d: capacity must be > 0", ErrInvalid, i)
		}
		d.cpus = d.cpus.Union(span)
		for _, cpu := range span.List() {
			d.byCPU[cpu] = i
		}
		dom.span = span

		dom.opps = make([]energy.OPP, len(dom.OPPs))
		for j, o := range dom.OPPs {
			dom.opps[j] = energy.OPP{Freq: o.Freq, Power: o.Power}
		}
		sort.SliceStable(dom.opps, func(a, b int) bool { return dom.opps[a].Freq < dom.opps[b].Freq })
	}

	if d.Possible < 0 {
		return fmt.Errorf("%w: possible_cpus must be >= 0, got %d", ErrInvalid, d.Possible)
	}
	if d.Possible > types.MaxCPUs {
		return fmt.Errorf("%w: possible_cpus %d exceeds %d", ErrInvalid, d.Possible, types.MaxCPUs)
	}
	if last := types.Last(d.cpus); d.Possible > 0 && d.Possible <= last {
		return fmt.Errorf("%w: possible_cpus %d does not cover cpu%d", ErrInvalid, d.Possible, last)
	}
	if d.Current != nil && !d.cpus.Contains(*d.Current) {
		return fmt.Errorf("%w: current_cpu %d is not described", ErrInvalid, *d.Current)
	}
	return nil
}

// CPUs returns every described CPU.
func (d *Description) CPUs() cpuset.CPUSet { return d.cpus }

// CurrentCPU implements energy.Topology.
func (d *Description) CurrentCPU() int {
	if d.Current != nil {
		return *d.Current
	}
	return types.First(d.cpus)
}

// PossibleCPUs implements energy.Topology.
func (d *Description) PossibleCPUs() int {
	if d.Possible > 0 {
		return d.Possible
	}
	return types.Last(d.cpus) + 1
}

// HasAsymCapacity implements energy.Topology.
func (d *Description) HasAsymCapacity(cpu int) bool {
	if !d.cpus.Contains(cpu) {
		return false
	}
	if d.Asymmetric != nil {
		return *d.Asymmetric
	}
	ref := d.Domains[d.byCPU[cpu]].Capacity
	for _, dom := range d.Domains {
		if dom.Capacity != ref {
			return true
		}
	}
	return false
}

// Device implements energy.Platform.
func (d *Description) Device(cpu int) (energy.Device, error) {
	i, ok := d.byCPU[cpu]
	if !ok {
		return nil, fmt.Errorf("%w: cpu%d not described", energy.ErrNoDevice, cpu)
	}
	return &device{dom: &d.Domains[i]}, nil
}

type device struct {
	dom *Domain
}

func (v *device) CapacityScale() uint64 { return v.dom.Capacity }

func (v *device) OPPCount() (int, error) { return len(v.dom.opps), nil }

func (v *device) FloorOPP(freq uint64) (energy.OPP, error) {
	opps := v.dom.opps
	i := sort.Search(len(opps), func(i int) bool { return opps[i].Freq > freq })
	if i == 0 {
		return energy.OPP{}, fmt.Errorf("%w: floor %d in %s", ErrNoOPP, freq, v.dom.span)
	}
	return opps[i-1], nil
}

func (v *device) CeilOPP(freq uint64) (energy.OPP, error) {
	opps := v.dom.opps
	i := sort.Search(len(opps), func(i int) bool { return opps[i].Freq >= freq })
	if i == len(opps) {
		return energy.OPP{}, fmt.Errorf("%w: ceil %d in %s", ErrNoOPP, freq, v.dom.span)
	}
	return opps[i], nil
}

func (v *device) SharingCPUs() (cpuset.CPUSet, error) { return v.dom.span.Clone(), nil }
