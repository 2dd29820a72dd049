package ripple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFailsOnlyOnResolution(t *testing.T) {
	_, err := New(Params{Width: 0, Height: 10})
	assert.ErrorIs(t, err, ErrInvalidResolution)

	sim := newTestSim(t, Params{Width: 4, Height: 4, C2Dt2: 0.1, Damping: 3, MaxSources: 40})
	p := sim.Params()
	assert.Less(t, p.Damping, float32(1))
	assert.Equal(t, MaxSources, p.MaxSources)
	assert.Zero(t, sim.Queue().Len())
}

func TestParamsCheck(t *testing.T) {
	assert.InDelta(t, 0.5, CourantLimit(0), 1e-7)
	assert.InDelta(t, 0.495, CourantLimit(0.02), 1e-6)

	assert.NoError(t, DefaultParams().Check())

	p := DefaultParams()
	p.C2Dt2 = 0.6
	assert.ErrorIs(t, p.Check(), ErrUnstable)

	p = DefaultParams()
	p.C2Dt2 = -0.1
	assert.ErrorIs(t, p.Check(), ErrUnstable)

	p = DefaultParams()
	p.Height = 0
	assert.ErrorIs(t, p.Check(), ErrInvalidResolution)
}

func TestAdvanceDrainsQueue(t *testing.T) {
	sim := newTestSim(t, Params{Width: 8, Height: 8, C2Dt2: 0.2, Damping: 0, MaxSources: 8})
	require.True(t, sim.Enqueue(CellSource(8, 8, 4, 4, 1, 1)))
	require.NoError(t, sim.Advance())
	assert.InDelta(t, 1.0, sim.Current().At(4, 4), 1e-5)
	assert.Zero(t, sim.Queue().Len())
	assert.Equal(t, uint64(1), sim.Field().Steps())
}

func TestResetDiscardsHistory(t *testing.T) {
	sim := newTestSim(t, Params{Width: 8, Height: 8, C2Dt2: 0.2, Damping: 0.1, MaxSources: 8})
	require.NoError(t, sim.Step([]Source{CellSource(8, 8, 2, 2, 1, 1)}))
	sim.Enqueue(NewSource(0.5, 0.5, 1, 1))

	sim.Reset()
	assert.Zero(t, Measure(sim.Current()).Energy)
	assert.Zero(t, sim.Queue().Len())
	require.NoError(t, sim.Advance())
	assert.Zero(t, Measure(sim.Current()).Energy)
}

func TestCloseIsTerminal(t *testing.T) {
	sim, err := New(Params{Width: 8, Height: 8, C2Dt2: 0.2, MaxSources: 2}, WithIntegrator(NewCPUIntegrator(2)))
	require.NoError(t, err)
	require.NoError(t, sim.Advance())

	sim.Close()
	sim.Close()
	assert.True(t, sim.Closed())
	assert.ErrorIs(t, sim.Advance(), ErrClosed)
	assert.ErrorIs(t, sim.Step(nil), ErrClosed)
}

func TestIndependentInstances(t *testing.T) {
	a := newTestSim(t, Params{Width: 8, Height: 8, C2Dt2: 0.2, MaxSources: 8})
	b := newTestSim(t, Params{Width: 8, Height: 8, C2Dt2: 0.2, MaxSources: 8})
	require.NoError(t, a.Step([]Source{CellSource(8, 8, 4, 4, 1, 1)}))
	require.NoError(t, b.Advance())
	assert.NotZero(t, Measure(a.Current()).Energy)
	assert.Zero(t, Measure(b.Current()).Energy)
}
