package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/Distortions81/ripple-field/internal/observability"
	"github.com/Distortions81/ripple-field/internal/tui"
	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Render the surface in the terminal; move the mouse to make ripples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			sim, err := newSimulation(cfg, logger)
			if err != nil {
				return err
			}

			screen, err := tcell.NewScreen()
			if err != nil {
				sim.Close()
				return err
			}
			if err := screen.Init(); err != nil {
				sim.Close()
				return err
			}
			app := tui.New(screen, sim, tui.Options{
				Camera:        cfg.Camera.Camera(),
				Surface:       cfg.Surface.Surface(),
				Style:         shadeStyle(cfg),
				Pointer:       pointerOptions(cfg),
				StepsPerFrame: cfg.Simulation.StepsPerFrame,
				Raw:           cfg.Render.Raw,
				Gain:          cfg.Render.Gain,
				Status:        cfg.Render.Debug,
				Logger:        logger,
			})
			defer app.Scheduler().Close()

			ticker := time.NewTicker(time.Second / time.Duration(cfg.Render.TPS))
			defer ticker.Stop()
			err = app.Run(cmd.Context(), ticker.C)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			counts := app.Counts()
			logger.Info("terminal session ended",
				zap.Uint64("frames", app.Scheduler().Frames()),
				zap.Uint64("accepted", counts.Accepted),
				zap.Uint64("throttled", counts.Throttled),
				zap.Uint64("missed", counts.Missed))
			return err
		},
	}
	cmd.Flags().Bool("raw", false, "draw the height grid instead of the shaded surface")
	cmd.Flags().Bool("status", false, "show the status line")
	bindFlag(cmd.Flags(), "raw", "render.raw")
	bindFlag(cmd.Flags(), "status", "render.debug")
	return cmd
}
