package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devlink-io/devlink/internal/controller"
	"github.com/devlink-io/devlink/internal/logger"
	"github.com/devlink-io/devlink/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller and keep sessions alive until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ui := newTerminalUI()
		reg := registry.NewWSRegistry()
		ctrl := controller.New(cfg, reg, ui)

		if err := ctrl.Init(ctx); err != nil {
			return fmt.Errorf("start controller: %w", err)
		}
		defer ctrl.Teardown(context.Background())

		logger.Component("serve").Info().
			Int("ingest_port", cfg.IngestPort).
			Msg("controller running, press Ctrl+C to stop")

		<-ctx.Done()
		fmt.Println("shutting down")
		return nil
	},
}
