package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/devlink-io/devlink/internal/adb"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices visible through the debug bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		bridge := adb.NewBridge(cfg.AdbPath)
		devices, err := bridge.Devices(cmd.Context())
		if err != nil {
			return err
		}

		if len(devices) == 0 {
			fmt.Println("No ADB devices found.")
			return nil
		}

		names := make([]string, 0, len(devices))
		for name := range devices {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fmt.Printf("%s\t%s\n", devices[name].ID, name)
		}
		return nil
	},
}
