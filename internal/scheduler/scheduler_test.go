package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Distortions81/ripple-field/internal/ripple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSim(t *testing.T) *ripple.Simulation {
	t.Helper()
	sim, err := ripple.New(ripple.Params{Width: 8, Height: 8, C2Dt2: 0.2, Damping: 0, MaxSources: 8})
	require.NoError(t, err)
	return sim
}

func TestFramePhaseOrder(t *testing.T) {
	var phases []Phase
	s := New(newSim(t), WithObserver(func(p Phase) { phases = append(phases, p) }))
	t.Cleanup(s.Close)

	require.NoError(t, s.Frame(time.Now()))
	assert.Equal(t, []Phase{PhaseIngest, PhaseDrain, PhaseIntegrate, PhaseRotate, PhaseRender, PhaseIdle}, phases)
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, uint64(1), s.Frames())
}

func TestFrameRunsIngestBeforeDrain(t *testing.T) {
	sim := newSim(t)
	var rendered float32
	s := New(sim,
		WithIngester(IngestFunc(func(time.Time) {
			sim.Enqueue(ripple.CellSource(8, 8, 4, 4, 1, 1))
		})),
		WithRenderer(RenderFunc(func(v ripple.View) error {
			rendered = v.At(4, 4)
			return nil
		})),
	)
	t.Cleanup(s.Close)

	require.NoError(t, s.Frame(time.Now()))
	assert.InDelta(t, 1.0, rendered, 1e-5, "the renderer sees the grid produced this frame")
	assert.Equal(t, 1, s.LastSources())
}

func TestSourcesApplyOnFirstSubStepOnly(t *testing.T) {
	sim, err := ripple.New(ripple.Params{Width: 1, Height: 1, C2Dt2: 0.2, Damping: 0, MaxSources: 1})
	require.NoError(t, err)
	var phases []Phase
	s := New(sim, WithStepsPerFrame(3), WithObserver(func(p Phase) { phases = append(phases, p) }))
	t.Cleanup(s.Close)

	sim.Enqueue(ripple.NewSource(0, 0, 1, 1))
	require.NoError(t, s.Frame(time.Now()))
	// Impulse then two free steps on a single cell: 1, 2, 3.
	assert.Equal(t, float32(3), sim.Current().At(0, 0))
	assert.Equal(t, uint64(3), sim.Field().Steps())

	var integrates int
	for _, p := range phases {
		if p == PhaseIntegrate {
			integrates++
		}
	}
	assert.Equal(t, 3, integrates)
}

func TestStepsPerFrameIsClamped(t *testing.T) {
	s := New(newSim(t), WithStepsPerFrame(0))
	t.Cleanup(s.Close)
	assert.Equal(t, MinStepsPerFrame, s.StepsPerFrame())
	s.SetStepsPerFrame(1000)
	assert.Equal(t, MaxStepsPerFrame, s.StepsPerFrame())
	s.SetStepsPerFrame(4)
	assert.Equal(t, 4, s.StepsPerFrame())
}

func TestRenderErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	s := New(newSim(t), WithRenderer(RenderFunc(func(ripple.View) error { return boom })))
	t.Cleanup(s.Close)

	err := s.Frame(time.Now())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Zero(t, s.Frames())
}

func TestCloseStopsScheduling(t *testing.T) {
	sim := newSim(t)
	s := New(sim)
	s.Close()
	s.Close()
	assert.True(t, sim.Closed())
	assert.ErrorIs(t, s.Frame(time.Now()), ripple.ErrClosed)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(newSim(t))
	t.Cleanup(s.Close)

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, ticks) }()

	ticks <- time.Now()
	ticks <- time.Now()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, s.Frames(), uint64(1))
}

func TestRunEndsWhenTicksClose(t *testing.T) {
	s := New(newSim(t))
	t.Cleanup(s.Close)

	ticks := make(chan time.Time, 3)
	for i := 0; i < 3; i++ {
		ticks <- time.Now()
	}
	close(ticks)
	require.NoError(t, s.Run(context.Background(), ticks))
	assert.Equal(t, uint64(3), s.Frames())
}

func TestStatsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(newSim(t), WithLogger(zap.New(core)), WithStatsInterval(time.Hour))
	t.Cleanup(s.Close)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Frame(time.Now()))
	}
	entries := logs.FilterMessage("frame").All()
	require.Len(t, entries, 1, "first frame logs, the rest fall inside the interval")
	assert.EqualValues(t, 1, entries[0].ContextMap()["frames"])
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "drain", PhaseDrain.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}
