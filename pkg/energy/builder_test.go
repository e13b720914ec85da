package energy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"k8s.io/utils/cpuset"
)

func TestBuild_TableFromOPPs(t *testing.T) {
	env := newTestEnv()
	dev := &fakeDevice{
		scale: 1024,
		span:  cpuset.New(0),
		opps: []OPP{
			{Freq: 500, Power: 50},
			{Freq: 1000, Power: 150},
			{Freq: 2000, Power: 500},
		},
	}

	em, err := env.model.buildEnergyModel(newFakePlatform(dev), 0)
	require.NoError(t, err)
	require.Equal(t, 3, em.NrCapStates())

	want := []CapacityState{
		{Cap: 256, Power: 50},
		{Cap: 512, Power: 150},
		{Cap: 1024, Power: 500},
	}
	assert.Equal(t, want, em.States)
	assert.Equal(t, uint64(1024), em.MaxCap())
	assert.Empty(t, env.obs.warnings)

	// model + its table stay reserved until freed
	assert.Equal(t, 1, env.alloc.Outstanding(AllocModel))
	assert.Equal(t, 3, env.alloc.Outstanding(AllocCapStates))

	env.model.freeEnergyModel(em)
	assert.Zero(t, env.alloc.Total())
}

func TestBuild_NonDecreasingCapacity(t *testing.T) {
	for _, dev := range []*fakeDevice{littleDevice(0), midDevice(0), bigDevice(0)} {
		env := newTestEnv()
		em, err := env.model.buildEnergyModel(newFakePlatform(dev), 0)
		require.NoError(t, err)
		require.Len(t, em.States, len(dev.opps))
		for i := 1; i < len(em.States); i++ {
			assert.GreaterOrEqual(t, em.States[i].Cap, em.States[i-1].Cap, "state %d", i)
		}
		assert.Equal(t, dev.scale, em.MaxCap(), "top state maps to the capacity scale")
		t.Logf("scale %d -> %+v", dev.scale, em.States)
	}
}

func TestBuild_FatalFailures_NoLeak(t *testing.T) {
	cases := []struct {
		name string
		dev  *fakeDevice
		want error
	}{
		{
			name: "zero opp count",
			dev:  &fakeDevice{scale: 1024, span: cpuset.New(0), count: intPtr(0)},
			want: ErrNoOPPs,
		},
		{
			name: "negative opp count",
			dev:  &fakeDevice{scale: 1024, span: cpuset.New(0), count: intPtr(-3)},
			want: ErrNoOPPs,
		},
		{
			name: "opp count error",
			dev:  &fakeDevice{scale: 1024, span: cpuset.New(0), countErr: errFake},
			want: ErrNoOPPs,
		},
		{
			name: "max freq query error",
			dev: &fakeDevice{scale: 1024, span: cpuset.New(0), floorErr: errFake,
				opps: []OPP{{Freq: 100, Power: 1}}},
			want: ErrNoMaxFreq,
		},
		{
			name: "max freq zero",
			dev: &fakeDevice{scale: 1024, span: cpuset.New(0),
				opps: []OPP{{Freq: 0, Power: 1}}},
			want: ErrNoMaxFreq,
		},
		{
			name: "zero power",
			dev: &fakeDevice{scale: 1024, span: cpuset.New(0),
				opps: []OPP{{Freq: 100, Power: 10}, {Freq: 200, Power: 0}, {Freq: 300, Power: 50}}},
			want: ErrZeroOPP,
		},
		{
			name: "zero frequency",
			dev: &fakeDevice{scale: 1024, span: cpuset.New(0),
				opps: []OPP{{Freq: 0, Power: 10}, {Freq: 300, Power: 50}}},
			want: ErrZeroOPP,
		},
		{
			name: "opp query error",
			dev: &fakeDevice{scale: 1024, span: cpuset.New(0), ceilErr: 2,
				opps: []OPP{{Freq: 100, Power: 10}, {Freq: 300, Power: 50}}},
			want: ErrOPPQuery,
		},
		{
			name: "count exceeds available opps",
			dev: &fakeDevice{scale: 1024, span: cpuset.New(0), count: intPtr(3),
				opps: []OPP{{Freq: 100, Power: 10}, {Freq: 300, Power: 50}}},
			want: ErrOPPQuery,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			em, err := env.model.buildEnergyModel(newFakePlatform(tc.dev), 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, em)

			allocs, frees := env.alloc.Calls()
			assert.Equal(t, allocs, frees, "every reservation is released")
			assert.Zero(t, env.alloc.Total())
		})
	}
}

func TestBuild_NoDevice(t *testing.T) {
	env := newTestEnv()
	em, err := env.model.buildEnergyModel(newFakePlatform(), 3)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Nil(t, em)
	assert.Zero(t, env.alloc.Total())
}

func TestBuild_AllocFailure(t *testing.T) {
	for _, failAt := range []int{1, 2} {
		t.Run(fmt.Sprintf("alloc_%d", failAt), func(t *testing.T) {
			env := newTestEnv()
			env.alloc.FailAt = failAt
			em, err := env.model.buildEnergyModel(newFakePlatform(bigDevice(0)), 0)
			assert.ErrorIs(t, err, ErrAlloc)
			assert.Nil(t, em)
			assert.Zero(t, env.alloc.Total())
		})
	}
}

func TestBuild_EfficiencyWarningIsNotFatal(t *testing.T) {
	env := newTestEnv()
	dev := &fakeDevice{
		scale: 1024,
		span:  cpuset.New(2),
		opps: []OPP{
			{Freq: 500, Power: 50},
			{Freq: 1000, Power: 60}, // more efficient than the one below
			{Freq: 2000, Power: 500},
		},
	}

	em, err := env.model.buildEnergyModel(newFakePlatform(dev), 2)
	require.NoError(t, err)

	assert.Equal(t, []CapacityState{
		{Cap: 256, Power: 50},
		{Cap: 512, Power: 60},
		{Cap: 1024, Power: 500},
	}, em.States)
	assert.Equal(t, [][2]int{{2, 1}}, env.obs.warnings)
	assert.Contains(t, env.logs.String(), "cap/pwr")
	assert.Greater(t, em.Efficiency(1), em.Efficiency(0))
}

func TestBuild_EqualEfficiencyWarns(t *testing.T) {
	env := newTestEnv()
	dev := &fakeDevice{
		scale: 1000,
		span:  cpuset.New(0),
		opps: []OPP{
			{Freq: 100, Power: 10},
			{Freq: 200, Power: 20},
		},
	}
	_, err := env.model.buildEnergyModel(newFakePlatform(dev), 0)
	require.NoError(t, err)
	assert.Len(t, env.obs.warnings, 1)
}

func TestBuild_WalksFrequenciesAscending(t *testing.T) {
	env := newTestEnv()
	dev := bigDevice(0)
	em, err := env.model.buildEnergyModel(newFakePlatform(dev), 0)
	require.NoError(t, err)
	assert.Equal(t, len(dev.opps), dev.ceilCalls, "one ceil lookup per opp")
	assert.Equal(t, []CapacityState{
		{Cap: 341, Power: 400},
		{Cap: 682, Power: 1200},
		{Cap: 1024, Power: 2800},
	}, em.States)
}
