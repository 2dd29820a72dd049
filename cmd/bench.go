package cmd

import (
	"fmt"
	"math"
	"time"

	"github.com/Distortions81/ripple-field/internal/observability"
	"github.com/Distortions81/ripple-field/internal/pointer"
	"github.com/Distortions81/ripple-field/internal/ripple"
	"github.com/Distortions81/ripple-field/internal/scheduler"
	"github.com/Distortions81/ripple-field/internal/shade"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a scripted pointer sweep headless and report timings",
		Long: `bench drives the simulation with a synthetic pointer that sweeps the
visible water, optionally shading every frame, and prints frame timings,
pointer outcomes and field statistics. With --cpu-profile it records a pprof
CPU profile suitable for profile-guided optimisation.`,
		Args: cobra.NoArgs,
		RunE: runBench,
	}
	cmd.Flags().Int("frames", 0, "number of frames to run")
	cmd.Flags().String("cpu-profile", "", "write a CPU profile to this file")
	cmd.Flags().Bool("shade", true, "shade every frame at the render resolution")
	bindFlag(cmd.Flags(), "frames", "profile.frames")
	bindFlag(cmd.Flags(), "cpu-profile", "profile.cpu_profile")
	return cmd
}

// sweep moves a synthetic pointer along a Lissajous path over the lower part
// of the viewport, where the surface is visible.
type sweep struct {
	mapper *pointer.Mapper
	event  pointer.Event
	frame  int
	clock  time.Time
	dt     time.Duration
}

func (s *sweep) Ingest(time.Time) {
	t := float64(s.frame) / 90
	w, h := float64(s.event.ViewportW), float64(s.event.ViewportH)
	s.event.X = w * (0.5 + 0.4*math.Sin(3*t))
	s.event.Y = h * (0.8 + 0.15*math.Sin(2*t+0.5))
	s.event.At = s.clock
	s.mapper.HandleMove(s.event)
	s.frame++
	s.clock = s.clock.Add(s.dt)
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	logger := observability.GetLogger().Named("bench")
	sim, err := newSimulation(cfg, logger)
	if err != nil {
		return err
	}

	shadeFrames, _ := cmd.Flags().GetBool("shade")
	in := &sweep{
		mapper: pointer.NewMapper(sim.Queue(), pointerOptions(cfg)),
		event: pointer.Event{
			ViewportW: cfg.Render.Width,
			ViewportH: cfg.Render.Height,
			Camera:    cfg.Camera.Camera(),
			Surface:   cfg.Surface.Surface(),
		},
		clock: time.Unix(0, 0),
		dt:    time.Second / time.Duration(cfg.Render.TPS),
	}
	opts := []scheduler.Option{
		scheduler.WithIngester(in),
		scheduler.WithStepsPerFrame(cfg.Simulation.StepsPerFrame),
		scheduler.WithLogger(logger),
	}
	if shadeFrames {
		shader := shade.New(shadeStyle(cfg), cfg.Camera.Camera(), cfg.Surface.Surface(), cfg.Render.Width, cfg.Render.Height)
		pixels := make([]byte, cfg.Render.Width*cfg.Render.Height*4)
		opts = append(opts, scheduler.WithRenderer(scheduler.RenderFunc(func(v ripple.View) error {
			return shader.Shade(v, pixels)
		})))
	}
	sched := scheduler.New(sim, opts...)
	defer sched.Close()

	if path := cfg.Profile.CPUProfile; path != "" {
		stop, err := startCPUProfile(path)
		if err != nil {
			return fmt.Errorf("cpu profile: %w", err)
		}
		defer stop()
		logger.Info("recording CPU profile", zap.String("path", path))
	}

	ctx := cmd.Context()
	start := time.Now()
	frames := 0
	for frames < cfg.Profile.Frames {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := sched.Frame(in.clock); err != nil {
			return err
		}
		frames++
	}
	elapsed := time.Since(start)

	counts := in.mapper.Counts()
	q := sim.Queue().Stats()
	st := ripple.Measure(sim.Current())
	perFrame := time.Duration(0)
	if frames > 0 {
		perFrame = elapsed / time.Duration(frames)
	}
	steps := sim.Field().Steps()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "integrator: %s, grid %dx%d, %d steps/frame\n",
		sim.Integrator().Name(), sim.Params().Width, sim.Params().Height, sched.StepsPerFrame())
	fmt.Fprintf(out, "frames: %d in %s (%s/frame, %.0f steps/s)\n",
		frames, elapsed.Round(time.Millisecond), perFrame.Round(time.Microsecond),
		float64(steps)/math.Max(elapsed.Seconds(), 1e-9))
	fmt.Fprintf(out, "pointer: %d accepted, %d throttled, %d missed, %d dropped\n",
		counts.Accepted, counts.Throttled, counts.Missed, counts.Dropped)
	fmt.Fprintf(out, "queue: %d enqueued, %d drained, %d dropped, %d rejected\n",
		q.Enqueued, q.Drained, q.Dropped, q.Rejected)
	fmt.Fprintf(out, "field: min %.5f max %.5f energy %.6g finite %t\n",
		st.Min, st.Max, st.Energy, st.Finite)

	logger.Info("bench finished",
		zap.Int("frames", frames),
		zap.Duration("elapsed", elapsed),
		zap.Uint64("steps", steps),
		zap.Bool("finite", st.Finite))
	return nil
}
