package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devlink-io/devlink/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded device addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := history.NewStore(cfg.HistoryPath, cfg.DevicePort)

		records := store.Records()
		if len(records) == 0 {
			fmt.Println("No recorded addresses.")
			return nil
		}

		for _, rec := range records {
			fmt.Printf("%s\tlast seen %s\n",
				rec.IP, rec.LastSeen.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all recorded device addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := history.NewStore(cfg.HistoryPath, cfg.DevicePort)

		ui := newTerminalUI()
		if !ui.Confirm("Clear all recorded device addresses?") {
			return nil
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("History cleared.")
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyClearCmd)
}
