package cmd

import (
	"github.com/Distortions81/ripple-field/internal/observability"
	"github.com/Distortions81/ripple-field/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Stream the height field to websocket clients",
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
			srv := server.New(sim, server.Options{
				FrameRate:     cfg.Server.FrameRate,
				StepsPerFrame: cfg.Simulation.StepsPerFrame,
				Downsample:    cfg.Server.Downsample,
				SendBuffer:    cfg.Server.SendBuffer,
				WriteTimeout:  cfg.Server.WriteTimeout,
				Camera:        cfg.Camera.Camera(),
				Surface:       cfg.Surface.Surface(),
				Pointer:       pointerOptions(cfg),
				Logger:        logger,
			})
			defer srv.Scheduler().Close()
			return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr)
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().Int("frame-rate", 0, "frames per second")
	bindFlag(cmd.Flags(), "addr", "server.addr")
	bindFlag(cmd.Flags(), "frame-rate", "server.frame_rate")
	return cmd
}
