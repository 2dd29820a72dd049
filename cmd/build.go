package cmd

import (
	"fmt"

	"github.com/Distortions81/ripple-field/internal/config"
	"github.com/Distortions81/ripple-field/internal/pointer"
	"github.com/Distortions81/ripple-field/internal/probe"
	"github.com/Distortions81/ripple-field/internal/ripple"
	"github.com/Distortions81/ripple-field/internal/shade"
	"go.uber.org/zap"
)

// newSimulation builds the simulation described by cfg with the configured
// backend and queue policy.
func newSimulation(cfg *config.Config, logger *zap.Logger) (*ripple.Simulation, error) {
	p := cfg.Simulation.Params()
	integrator, err := ripple.NewIntegrator(cfg.Simulation.Backend, cfg.Simulation.Workers, p.Width, p.Height)
	if err != nil {
		return nil, fmt.Errorf("integrator: %w", err)
	}
	queue := ripple.NewSourceQueue(p.MaxSources, ripple.ParseDrainPolicy(cfg.Simulation.DrainPolicy), cfg.Simulation.Backlog)
	sim, err := ripple.New(p, ripple.WithIntegrator(integrator), ripple.WithQueue(queue))
	if err != nil {
		integrator.Close()
		return nil, err
	}
	if err := p.Check(); err != nil {
		logger.Warn("running outside the stability bound", zap.Error(err))
	}
	logger.Info("simulation ready",
		zap.Int("width", p.Width),
		zap.Int("height", p.Height),
		zap.Float32("c2dt2", p.C2Dt2),
		zap.Float32("damping", p.Damping),
		zap.String("integrator", integrator.Name()),
		zap.Stringer("drain_policy", queue.Policy()))
	return sim, nil
}

func pointerOptions(cfg *config.Config) pointer.Options {
	return pointer.Options{
		Interval:  cfg.Pointer.Interval,
		Amplitude: cfg.Pointer.Amplitude,
		Sigma:     pointer.SigmaCells(cfg.Pointer.Spread, cfg.Simulation.Width, cfg.Simulation.Height),
	}
}

func shadeStyle(cfg *config.Config) shade.Style {
	style := shade.DefaultStyle()
	style.Opacity = cfg.Render.Opacity
	return style
}

// newProbe returns nil when audio is disabled.
func newProbe(cfg *config.Config) *probe.Probe {
	if !cfg.Audio.Enabled {
		return nil
	}
	return probe.New(cfg.Audio.ProbeU, cfg.Audio.ProbeV, cfg.Audio.Gain, probe.NewStream())
}
