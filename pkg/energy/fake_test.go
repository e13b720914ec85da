package energy

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"k8s.io/utils/cpuset"
)

var errFake = errors.New("fake: query failed")

// fakeDevice serves a fixed, ascending operating-point table.
type fakeDevice struct {
	scale uint64
	opps  []OPP
	span  cpuset.CPUSet

	count    *int // overrides len(opps) when set
	countErr error
	floorErr error
	spanErr  error
	ceilErr  int // 1-based ceil call that fails; 0 disables

	mu        sync.Mutex
	ceilCalls int
}

func (d *fakeDevice) CapacityScale() uint64 { return d.scale }

func (d *fakeDevice) OPPCount() (int, error) {
	if d.countErr != nil {
		return 0, d.countErr
	}
	if d.count != nil {
		return *d.count, nil
	}
	return len(d.opps), nil
}

func (d *fakeDevice) FloorOPP(freq uint64) (OPP, error) {
	if d.floorErr != nil {
		return OPP{}, d.floorErr
	}
	for i := len(d.opps) - 1; i >= 0; i-- {
		if d.opps[i].Freq <= freq {
			return d.opps[i], nil
		}
	}
	return OPP{}, fmt.Errorf("%w: no opp <= %d", errFake, freq)
}

func (d *fakeDevice) CeilOPP(freq uint64) (OPP, error) {
	d.mu.Lock()
	d.ceilCalls++
	n := d.ceilCalls
	d.mu.Unlock()
	if d.ceilErr > 0 && n == d.ceilErr {
		return OPP{}, errFake
	}
	i := sort.Search(len(d.opps), func(i int) bool { return d.opps[i].Freq >= freq })
	if i == len(d.opps) {
		return OPP{}, fmt.Errorf("%w: no opp >= %d", errFake, freq)
	}
	return d.opps[i], nil
}

func (d *fakeDevice) SharingCPUs() (cpuset.CPUSet, error) {
	if d.spanErr != nil {
		return cpuset.New(), d.spanErr
	}
	return d.span, nil
}

// fakePlatform maps every CPU of a domain to the same device.
type fakePlatform struct {
	devs   map[int]*fakeDevice
	panics map[int]bool // cpus whose lookup panics

	mu      sync.Mutex
	lookups []int
}

func (p *fakePlatform) Device(cpu int) (Device, error) {
	p.mu.Lock()
	p.lookups = append(p.lookups, cpu)
	p.mu.Unlock()
	if p.panics[cpu] {
		panic(fmt.Sprintf("fake: device lookup of cpu%d", cpu))
	}
	d, ok := p.devs[cpu]
	if !ok {
		return nil, fmt.Errorf("%w: cpu%d", ErrNoDevice, cpu)
	}
	return d, nil
}

func newFakePlatform(devs ...*fakeDevice) *fakePlatform {
	p := &fakePlatform{devs: make(map[int]*fakeDevice)}
	for _, d := range devs {
		for _, c := range d.span.List() {
			p.devs[c] = d
		}
	}
	return p
}

type fakeTopology struct {
	current int
	asym    bool
	n       int

	// gate, when set, blocks HasAsymCapacity until closed.
	entered chan struct{}
	gate    chan struct{}
}

func (t *fakeTopology) CurrentCPU() int   { return t.current }
func (t *fakeTopology) PossibleCPUs() int { return t.n }
func (t *fakeTopology) HasAsymCapacity(int) bool {
	if t.gate != nil {
		close(t.entered)
		<-t.gate
	}
	return t.asym
}

// recordingObserver keeps every notification.
type recordingObserver struct {
	mu        sync.Mutex
	published []int
	failures  []error
	warnings  [][2]int
}

func (o *recordingObserver) Published(domains, cpus int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = append(o.published, domains)
}

func (o *recordingObserver) BuildFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
}

func (o *recordingObserver) EfficiencyWarning(cpu, state int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnings = append(o.warnings, [2]int{cpu, state})
}

// littleDevice, midDevice and bigDevice describe a three-rail phone-like SoC.
func littleDevice(cpus ...int) *fakeDevice {
	return &fakeDevice{
		scale: 446,
		span:  cpuset.New(cpus...),
		opps: []OPP{
			{Freq: 500000, Power: 26},
			{Freq: 1000000, Power: 70},
			{Freq: 1500000, Power: 155},
		},
	}
}

func midDevice(cpus ...int) *fakeDevice {
	return &fakeDevice{
		scale: 871,
		span:  cpuset.New(cpus...),
		opps: []OPP{
			{Freq: 800000, Power: 150},
			{Freq: 1600000, Power: 400},
			{Freq: 2000000, Power: 700},
			{Freq: 2400000, Power: 1100},
		},
	}
}

func bigDevice(cpus ...int) *fakeDevice {
	return &fakeDevice{
		scale: 1024,
		span:  cpuset.New(cpus...),
		opps: []OPP{
			{Freq: 1000000, Power: 400},
			{Freq: 2000000, Power: 1200},
			{Freq: 3000000, Power: 2800},
		},
	}
}

type testEnv struct {
	model *Model
	alloc *CountingAllocator
	obs   *recordingObserver
	logs  *bytes.Buffer
}

func newTestEnv() *testEnv {
	env := &testEnv{
		alloc: &CountingAllocator{},
		obs:   &recordingObserver{},
		logs:  &bytes.Buffer{},
	}
	env.model = New(&Config{
		Logger:    slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Allocator: env.alloc,
		Observer:  env.obs,
	})
	return env
}

func intPtr(v int) *int { return &v }
