// Package scheduler sequences one simulation frame per display refresh:
// ingest, drain, integrate, rotate, render.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Distortions81/ripple-field/internal/ripple"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Steps per frame bounds.
const (
	MinStepsPerFrame = 1
	MaxStepsPerFrame = 64

	defaultStatsInterval = 5 * time.Second
)

// Phase is the scheduler state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIngest
	PhaseDrain
	PhaseIntegrate
	PhaseRotate
	PhaseRender
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseIngest:
		return "ingest"
	case PhaseDrain:
		return "drain"
	case PhaseIntegrate:
		return "integrate"
	case PhaseRotate:
		return "rotate"
	case PhaseRender:
		return "render"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Ingester moves pending pointer input into the source queue.
type Ingester interface {
	Ingest(now time.Time)
}

// IngestFunc adapts a function to Ingester.
type IngestFunc func(now time.Time)

// Ingest calls f(now).
func (f IngestFunc) Ingest(now time.Time) { f(now) }

// Renderer consumes the current grid once per frame.
type Renderer interface {
	Render(ripple.View) error
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(ripple.View) error

// Render calls f(v).
func (f RenderFunc) Render(v ripple.View) error { return f(v) }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIngester sets the input pump run at the start of each frame.
func WithIngester(in Ingester) Option { return func(s *Scheduler) { s.ingester = in } }

// WithRenderer sets the frame consumer.
func WithRenderer(r Renderer) Option { return func(s *Scheduler) { s.renderer = r } }

// WithStepsPerFrame sets how many integration steps run per frame.
func WithStepsPerFrame(n int) Option { return func(s *Scheduler) { s.steps = clampSteps(n) } }

// WithObserver registers a callback invoked on every phase transition.
func WithObserver(fn func(Phase)) Option { return func(s *Scheduler) { s.observer = fn } }

// WithLogger sets the logger used for periodic frame statistics.
func WithLogger(l *zap.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// WithStatsInterval sets how often frame statistics are logged. Zero disables
// them.
func WithStatsInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.statsInterval = d }
}

// Scheduler drives a simulation from refresh callbacks. It is not safe for
// concurrent use; pointer producers on other goroutines go through the source
// queue.
type Scheduler struct {
	sim      *ripple.Simulation
	ingester Ingester
	renderer Renderer
	observer func(Phase)
	logger   *zap.Logger

	steps         int
	phase         Phase
	frames        uint64
	lastFrame     time.Duration
	lastSources   int
	statsInterval time.Duration
	stats         rate.Sometimes
	closed        bool
}

// New wraps sim. The scheduler owns sim from here on and closes it on Close.
func New(sim *ripple.Simulation, opts ...Option) *Scheduler {
	s := &Scheduler{
		sim:           sim,
		steps:         MinStepsPerFrame,
		logger:        zap.NewNop(),
		statsInterval: defaultStatsInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stats = rate.Sometimes{Interval: s.statsInterval}
	return s
}

func (s *Scheduler) enter(p Phase) {
	s.phase = p
	if s.observer != nil {
		s.observer(p)
	}
}

// Frame runs one full cycle. Drained sources are applied on the first step of
// the frame only.
func (s *Scheduler) Frame(now time.Time) error {
	if s.closed {
		return ripple.ErrClosed
	}
	start := time.Now()

	s.enter(PhaseIngest)
	if s.ingester != nil {
		s.ingester.Ingest(now)
	}

	s.enter(PhaseDrain)
	sources := s.sim.Drain()
	s.lastSources = len(sources)

	for i := 0; i < s.steps; i++ {
		s.enter(PhaseIntegrate)
		if err := s.sim.Integrate(sources); err != nil {
			s.enter(PhaseIdle)
			return fmt.Errorf("integrate: %w", err)
		}
		sources = nil
		s.enter(PhaseRotate)
		s.sim.Rotate()
	}

	s.enter(PhaseRender)
	if s.renderer != nil {
		if err := s.renderer.Render(s.sim.Current()); err != nil {
			s.enter(PhaseIdle)
			return fmt.Errorf("render: %w", err)
		}
	}
	s.enter(PhaseIdle)

	s.frames++
	s.lastFrame = time.Since(start)
	if s.statsInterval > 0 {
		s.stats.Do(s.logStats)
	}
	return nil
}

func (s *Scheduler) logStats() {
	st := ripple.Measure(s.sim.Current())
	q := s.sim.Queue().Stats()
	s.logger.Debug("frame",
		zap.Uint64("frames", s.frames),
		zap.Uint64("steps", s.sim.Field().Steps()),
		zap.Int("steps_per_frame", s.steps),
		zap.Duration("frame_time", s.lastFrame),
		zap.Float32("min", st.Min),
		zap.Float32("max", st.Max),
		zap.Float64("energy", st.Energy),
		zap.Uint64("enqueued", q.Enqueued),
		zap.Uint64("dropped", q.Dropped),
		zap.Uint64("rejected", q.Rejected),
	)
	if !st.Finite {
		s.logger.Warn("height field is no longer finite; check the stability bound",
			zap.Float32("c2dt2", s.sim.Params().C2Dt2),
			zap.Float32("limit", ripple.CourantLimit(s.sim.Params().Damping)))
	}
}

// Run calls Frame for every tick until ctx is done, ticks is closed or a
// frame fails.
func (s *Scheduler) Run(ctx context.Context, ticks <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now, ok := <-ticks:
			if !ok {
				return nil
			}
			if err := s.Frame(now); err != nil {
				return err
			}
		}
	}
}

// Reset clears the field and pending input.
func (s *Scheduler) Reset() { s.sim.Reset() }

// SetStepsPerFrame changes the number of steps per frame, clamped to
// [MinStepsPerFrame, MaxStepsPerFrame].
func (s *Scheduler) SetStepsPerFrame(n int) { s.steps = clampSteps(n) }

// StepsPerFrame returns the current number of steps per frame.
func (s *Scheduler) StepsPerFrame() int { return s.steps }

// Phase returns the current phase; PhaseIdle between frames.
func (s *Scheduler) Phase() Phase { return s.phase }

// Frames returns the number of completed frames.
func (s *Scheduler) Frames() uint64 { return s.frames }

// LastFrameTime returns the duration of the last completed frame.
func (s *Scheduler) LastFrameTime() time.Duration { return s.lastFrame }

// LastSources returns how many sources the last frame drained.
func (s *Scheduler) LastSources() int { return s.lastSources }

// Simulation exposes the driven simulation.
func (s *Scheduler) Simulation() *ripple.Simulation { return s.sim }

// Close stops scheduling and releases the simulation.
func (s *Scheduler) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.sim.Close()
}

func clampSteps(n int) int {
	if n < MinStepsPerFrame {
		return MinStepsPerFrame
	}
	if n > MaxStepsPerFrame {
		return MaxStepsPerFrame
	}
	return n
}
