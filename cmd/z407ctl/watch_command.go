package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"z407ctl/internal/ble"
	"z407ctl/internal/ble/protocol"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Hold a connection and print every event the puck emits",
		Long: `Hold a connection to the puck and print every decoded notification until
interrupted. Reconnects with backoff if the link drops.

The puck cannot be queried, so this stream of deltas and confirmations is
the only state feedback it offers. Anything printed as UNRECOGNIZED is a
frame the firmware emits that the protocol tables don't cover.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyLogLevel(cfg)

			adapter := ctx.newAdapter()
			if err := adapter.Enable(); err != nil {
				return fmt.Errorf("enable adapter: %w", err)
			}

			address := ctx.address(cfg)
			if address == "" {
				devices, err := ble.ScanForDevices(adapter, cfg.ScanTimeout())
				if err != nil {
					return err
				}
				if len(devices) == 0 {
					return errors.New("no Z407 puck found; power it on or pass --address")
				}
				address = devices[0].Address
			}

			client, err := ble.NewClient(adapter, address, ble.ClientOptions{
				StepTimeout:  cfg.HandshakeTimeout(),
				ReconnectMax: cfg.ReconnectMaxSeconds,
			})
			if err != nil {
				return err
			}
			client.OnEvent(func(ev protocol.Event) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", time.Now().Format("15:04:05"), ev)
			})

			if err := client.Connect(); err != nil {
				return err
			}
			defer client.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s (Ctrl+C to stop)\n", address)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sigCh:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
}
