package ripple

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroFieldStaysZero(t *testing.T) {
	sim := newTestSim(t, Params{Width: 16, Height: 16, C2Dt2: 0.3, Damping: 0.1, MaxSources: 8})
	for step := 0; step < 50; step++ {
		require.NoError(t, sim.Advance())
	}
	st := Measure(sim.Current())
	assert.Zero(t, st.Energy)
	assert.Zero(t, st.Min)
	assert.Zero(t, st.Max)
}

func TestSingleImpulseOnFlatField(t *testing.T) {
	sim := newTestSim(t, Params{Width: 8, Height: 8, C2Dt2: 0.2, Damping: 0, MaxSources: 8})
	require.NoError(t, sim.Step([]Source{CellSource(8, 8, 4, 4, 1, 1)}))

	v := sim.Current()
	assert.InDelta(t, 1.0, v.At(4, 4), 1e-5)
	want := math.Exp(-0.5)
	for _, n := range [][2]int{{3, 4}, {5, 4}, {4, 3}, {4, 5}} {
		assert.InDelta(t, want, v.At(n[0], n[1]), 1e-5, "neighbour %v", n)
	}
	assert.InDelta(t, math.Exp(-1), v.At(5, 5), 1e-5)
}

func TestSourceAffectsExactlyOneStep(t *testing.T) {
	// On a single cell the Laplacian vanishes, so with no damping the height
	// follows next = 2·curr − prev. A one-shot impulse of 1 gives 1, 2, 3;
	// a sustained emitter would give 1, 3, 6.
	sim := newTestSim(t, Params{Width: 1, Height: 1, C2Dt2: 0.2, Damping: 0, MaxSources: 1})
	require.NoError(t, sim.Step([]Source{NewSource(0, 0, 1, 1)}))
	assert.Equal(t, float32(1), sim.Current().At(0, 0))
	require.NoError(t, sim.Step(nil))
	assert.Equal(t, float32(2), sim.Current().At(0, 0))
	require.NoError(t, sim.Step(nil))
	assert.Equal(t, float32(3), sim.Current().At(0, 0))
}

func TestDampingDecaysOscillationEnergy(t *testing.T) {
	const window = 50
	sim := newTestSim(t, Params{Width: 16, Height: 16, C2Dt2: 0.2, Damping: 0.05, MaxSources: 8})
	require.NoError(t, sim.Step([]Source{CellSource(16, 16, 8, 8, 1, 1.5)}))

	sums := make([]float64, 4)
	for w := range sums {
		for i := 0; i < window; i++ {
			require.NoError(t, sim.Step(nil))
			st := Measure(sim.Current())
			require.True(t, st.Finite)
			sums[w] += st.Deviation
		}
	}
	for w := 1; w < len(sums); w++ {
		assert.Less(t, sums[w], sums[w-1], "window %d should hold less energy than window %d", w, w-1)
	}
}

func TestLosslessFieldKeepsOscillating(t *testing.T) {
	sim := newTestSim(t, Params{Width: 16, Height: 16, C2Dt2: 0.2, Damping: 0, MaxSources: 8})
	require.NoError(t, sim.Step([]Source{CellSource(16, 16, 8, 8, 1, 1.5)}))
	for i := 0; i < 200; i++ {
		require.NoError(t, sim.Step(nil))
	}
	st := Measure(sim.Current())
	assert.True(t, st.Finite)
	assert.Greater(t, st.Deviation, 0.0)
}

func TestEdgeSourcesStayBounded(t *testing.T) {
	const n = 32
	sim := newTestSim(t, Params{Width: n, Height: n, C2Dt2: 0.25, Damping: 0.02, MaxSources: 8})
	require.NoError(t, sim.Step([]Source{
		CellSource(n, n, 0, 0, 1, 2),
		CellSource(n, n, n-1, n/2, 1, 2),
		CellSource(n, n, n/2, n-1, 1, 2),
	}))
	for i := 0; i < 300; i++ {
		require.NoError(t, sim.Step(nil))
		st := Measure(sim.Current())
		require.True(t, st.Finite, "step %d produced a non-finite value", i)
		require.Less(t, math.Abs(float64(st.Max)), 50.0)
		require.Less(t, math.Abs(float64(st.Min)), 50.0)
	}
	v := sim.Current()
	for x := 0; x < n; x++ {
		for _, y := range []int{0, n - 1} {
			h := float64(v.At(x, y))
			assert.False(t, math.IsNaN(h) || math.IsInf(h, 0), "edge cell (%d,%d)", x, y)
		}
	}
}

func TestParallelIntegratorMatchesSerial(t *testing.T) {
	p := Params{Width: 37, Height: 29, C2Dt2: 0.3, Damping: 0.01, MaxSources: 8}
	serial := newTestSim(t, p)
	parallel := newTestSim(t, p, WithIntegrator(NewCPUIntegrator(4)))
	assert.Equal(t, "cpu", serial.Integrator().Name())
	assert.Equal(t, "cpu-parallel", parallel.Integrator().Name())

	for step := 0; step < 25; step++ {
		var sources []Source
		if step%5 == 0 {
			sources = []Source{
				NewSource(0.2+0.1*float64(step%3), 0.4, 0.5, 2),
				NewSource(0.9, 0.1, -0.3, 1),
			}
		}
		require.NoError(t, serial.Step(sources))
		require.NoError(t, parallel.Step(sources))
	}
	a := make([]float32, p.Width*p.Height)
	b := make([]float32, p.Width*p.Height)
	serial.Current().CopyTo(a)
	parallel.Current().CopyTo(b)
	assert.Equal(t, a, b)
}

func TestStepAppliesAtMostMaxSources(t *testing.T) {
	sim := newTestSim(t, Params{Width: 9, Height: 9, C2Dt2: 0.1, Damping: 0, MaxSources: 2})
	require.NoError(t, sim.Step([]Source{
		CellSource(9, 9, 0, 0, 1, 0),
		CellSource(9, 9, 8, 0, 1, 0),
		CellSource(9, 9, 4, 8, 1, 0),
	}))
	v := sim.Current()
	assert.Equal(t, float32(1), v.At(0, 0))
	assert.Equal(t, float32(1), v.At(8, 0))
	assert.Zero(t, v.At(4, 8), "third source exceeds the cap")
}

func TestDegenerateGrids(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {1, 6}, {6, 1}, {2, 2}} {
		sim := newTestSim(t, Params{Width: dims[0], Height: dims[1], C2Dt2: 0.2, Damping: 0.1, MaxSources: 1})
		require.NoError(t, sim.Step([]Source{NewSource(0.5, 0.5, 1, 1)}))
		for i := 0; i < 10; i++ {
			require.NoError(t, sim.Step(nil))
		}
		assert.True(t, Measure(sim.Current()).Finite, "dims %v", dims)
	}
}

func TestStepOnReleasedField(t *testing.T) {
	f, err := NewField(4, 4)
	require.NoError(t, err)
	f.Release()
	in := NewCPUIntegrator(1)
	assert.ErrorIs(t, in.Step(f, nil, DefaultParams()), ErrReleased)
}

func TestAssignBandsCoversEveryRow(t *testing.T) {
	for _, tc := range []struct{ workers, height int }{{4, 29}, {8, 3}, {1, 10}, {3, 9}} {
		bands := assignBands(tc.workers, tc.height)
		require.NotEmpty(t, bands)
		assert.LessOrEqual(t, len(bands), tc.workers)
		next := 0
		for _, b := range bands {
			assert.Equal(t, next, b.y0)
			assert.Greater(t, b.y1, b.y0)
			next = b.y1
		}
		assert.Equal(t, tc.height, next)
	}
}

func TestNewIntegratorBackends(t *testing.T) {
	in, err := NewIntegrator(BackendCPU, 2, 8, 8)
	require.NoError(t, err)
	assert.Equal(t, "cpu-parallel", in.Name())
	in.Close()

	_, err = NewIntegrator("quantum", 1, 8, 8)
	assert.Error(t, err)

	if !OpenCLAvailable {
		_, err = NewIntegrator(BackendOpenCL, 1, 8, 8)
		assert.Error(t, err)
	}
}
