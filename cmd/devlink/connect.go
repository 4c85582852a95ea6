package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devlink-io/devlink/internal/controller"
	"github.com/devlink-io/devlink/internal/registry"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Establish a session to a script-execution device",
}

var connectLANCmd = &cobra.Command{
	Use:   "lan <address>",
	Short: "Connect to a device over the local network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			return ctrl.ConnectLAN(ctx, args[0])
		})
	},
}

var connectADBCmd = &cobra.Command{
	Use:   "adb",
	Short: "Connect to a device through forwarded debug-bridge ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			return ctrl.ConnectADB(ctx)
		})
	},
}

func init() {
	connectCmd.AddCommand(connectLANCmd)
	connectCmd.AddCommand(connectADBCmd)
}

// withController runs one connection action against a live controller and
// keeps the session open until interrupted.
func withController(action func(context.Context, *controller.Controller) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := newTerminalUI()
	reg := registry.NewWSRegistry()
	ctrl := controller.New(cfg, reg, ui)

	if err := ctrl.Init(ctx); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}
	defer ctrl.Teardown(context.Background())

	if err := action(ctx, ctrl); err != nil {
		if errors.Is(err, controller.ErrCancelled) {
			return nil
		}
		return err
	}

	if len(ctrl.Sessions().Devices()) == 0 {
		return nil
	}

	fmt.Println("session open, press Ctrl+C to disconnect")
	<-ctx.Done()
	return nil
}
