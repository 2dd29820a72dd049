package ripple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFieldRejectsInvalidResolution(t *testing.T) {
	for _, dims := range [][2]int{{0, 4}, {4, 0}, {-1, 8}} {
		_, err := NewField(dims[0], dims[1])
		assert.ErrorIs(t, err, ErrInvalidResolution, "dims %v", dims)
	}
}

func TestNewFieldIsZeroed(t *testing.T) {
	f, err := NewField(5, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, f.Width())
	assert.Equal(t, 3, f.Height())
	for _, s := range f.slots {
		require.Len(t, s, 15)
		for _, v := range s {
			assert.Zero(t, v)
		}
	}
}

func TestRotationCyclesWithPeriodThree(t *testing.T) {
	f, err := NewField(4, 4)
	require.NoError(t, err)

	start := [3]int{f.Slot(RolePrev), f.Slot(RoleCurr), f.Slot(RoleNext)}
	assert.ElementsMatch(t, []int{0, 1, 2}, start[:])

	for step := 1; step <= 9; step++ {
		oldCurr, oldNext, oldPrev := f.Slot(RoleCurr), f.Slot(RoleNext), f.Slot(RolePrev)
		f.Rotate()
		assert.Equal(t, oldNext, f.Slot(RoleCurr), "step %d: next becomes curr", step)
		assert.Equal(t, oldCurr, f.Slot(RolePrev), "step %d: curr becomes prev", step)
		assert.Equal(t, oldPrev, f.Slot(RoleNext), "step %d: prev is recycled as next", step)

		got := [3]int{f.Slot(RolePrev), f.Slot(RoleCurr), f.Slot(RoleNext)}
		if step%3 == 0 {
			assert.Equal(t, start, got, "mapping repeats every three steps")
		} else {
			assert.NotEqual(t, start, got)
		}
	}
	assert.Equal(t, uint64(9), f.Steps())
}

func TestRotationKeepsValuesContinuous(t *testing.T) {
	sim := newTestSim(t, Params{Width: 12, Height: 12, C2Dt2: 0.2, Damping: 0.01, MaxSources: 4})
	snapshot := make([]float32, 12*12)

	for step := 0; step < 12; step++ {
		var sources []Source
		if step == 0 {
			sources = []Source{CellSource(12, 12, 6, 6, 1, 1.5)}
		}
		sim.Current().CopyTo(snapshot)
		require.NoError(t, sim.Step(sources))

		prev := make([]float32, len(snapshot))
		sim.Field().Previous().CopyTo(prev)
		assert.Equal(t, snapshot, prev, "step %d: previous grid is the old current grid", step)
	}
}

func TestFieldResetRestoresInitialState(t *testing.T) {
	f, err := NewField(3, 3)
	require.NoError(t, err)
	f.slots[1][4] = 2
	f.Rotate()
	f.Rotate()

	f.Reset()
	assert.Equal(t, uint64(0), f.Steps())
	assert.Equal(t, 0, f.Slot(RoleCurr))
	for _, s := range f.slots {
		for _, v := range s {
			assert.Zero(t, v)
		}
	}
}

func TestViewAccessors(t *testing.T) {
	f, err := NewField(2, 2)
	require.NoError(t, err)
	cur := f.slots[f.Slot(RoleCurr)]
	copy(cur, []float32{0, 1, 2, 3})

	v := f.Current()
	assert.Equal(t, float32(1), v.At(1, 0))
	assert.Equal(t, float32(2), v.At(0, 1))
	assert.Equal(t, float32(3), v.At(5, 5), "coordinates clamp to the grid")

	assert.InDelta(t, 0.0, v.Sample(0, 0), 1e-6)
	assert.InDelta(t, 3.0, v.Sample(1, 1), 1e-6)
	assert.InDelta(t, 1.5, v.Sample(0.5, 0.5), 1e-6)
	assert.InDelta(t, 0.5, v.Sample(0.5, 0), 1e-6)
	assert.InDelta(t, 3.0, v.Sample(7, 7), 1e-6, "domain coordinates clamp to [0,1]")

	norm := make([]float32, 4)
	require.Equal(t, 4, v.Normalize(norm, 0.5))
	assert.Equal(t, []float32{0.5, 0.75, 1, 1}, norm)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "prev", RolePrev.String())
	assert.Equal(t, "curr", RoleCurr.String())
	assert.Equal(t, "next", RoleNext.String())
	assert.Equal(t, "role(7)", Role(7).String())
}
