package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"z407ctl/internal/ble"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Discover Z407 pucks in range",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyLogLevel(cfg)

			devices, err := ble.ScanForDevices(ctx.newAdapter(), cfg.ScanTimeout())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no Z407 pucks found")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "Address", "RSSI"})
			for _, d := range devices {
				t.AppendRow(table.Row{d.Name, d.Address, d.RSSI})
			}
			t.Render()
			return nil
		},
	}
}
