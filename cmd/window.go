package cmd

import (
	"github.com/Distortions81/ripple-field/internal/observability"
	"github.com/Distortions81/ripple-field/internal/window"
	"github.com/spf13/cobra"
)

func newWindowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Open the desktop view (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWindow(cmd)
		},
	}
	addWindowFlags(cmd)
	return cmd
}

func addWindowFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Bool("debug", false, "show the debug overlay")
	flags.Bool("raw", false, "draw the height grid instead of the shaded surface")
	flags.Bool("audio", false, "play the probe point through the audio device")
	bindFlag(flags, "debug", "render.debug")
	bindFlag(flags, "raw", "render.raw")
	bindFlag(flags, "audio", "audio.enabled")
}

func runWindow(cmd *cobra.Command) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	logger := observability.GetLogger()
	sim, err := newSimulation(cfg, logger)
	if err != nil {
		return err
	}
	game := window.New(sim, window.Options{
		Width:         cfg.Render.Width,
		Height:        cfg.Render.Height,
		Scale:         cfg.Render.Scale,
		TPS:           cfg.Render.TPS,
		Title:         "ripple-field",
		Camera:        cfg.Camera.Camera(),
		Surface:       cfg.Surface.Surface(),
		Style:         shadeStyle(cfg),
		Pointer:       pointerOptions(cfg),
		StepsPerFrame: cfg.Simulation.StepsPerFrame,
		Raw:           cfg.Render.Raw,
		Gain:          cfg.Render.Gain,
		Debug:         cfg.Render.Debug,
		Probe:         newProbe(cfg),
		AudioBuffer:   cfg.Audio.Buffer,
		Logger:        logger,
	})
	return window.Run(game)
}
