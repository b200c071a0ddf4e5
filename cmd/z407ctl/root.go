package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"z407ctl/internal/ble"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWithAdapter(nil)
}

// newRootCommandWithAdapter lets tests swap the BLE transport; a nil
// factory means the real system adapter.
func newRootCommandWithAdapter(newAdapter func() ble.Adapter) *cobra.Command {
	var (
		configFlag  string
		addressFlag string
		verboseFlag bool
	)

	cmd := &cobra.Command{
		Use:   "z407ctl",
		Short: "Control a Logitech Z407 speaker puck over BLE",
		Long: `z407ctl speaks the Z407 puck's BLE protocol: it runs the mandatory
connect-time handshake and then issues volume, bass, playback, input, and
sound-effect commands.

The puck never reports its state; the only feedback is best-effort
confirmation notifications, so absence of a confirmation does not mean a
command failed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(verboseFlag)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file (default: ~/.config/z407ctl/config.yaml)")
	cmd.PersistentFlags().StringVarP(&addressFlag, "address", "a", "", "puck BLE address (overrides config; default: scan)")
	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")

	ctx := newCommandContext(&configFlag, &addressFlag, &verboseFlag)
	if newAdapter != nil {
		ctx.newAdapter = newAdapter
	}
	cmd.AddCommand(
		newScanCommand(ctx),
		newVolumeCommand(ctx),
		newBassCommand(ctx),
		newPlayCommand(ctx),
		newNextCommand(ctx),
		newPrevCommand(ctx),
		newSourceCommand(ctx),
		newSoundCommand(ctx),
		newPairingCommand(ctx),
		newFactoryResetCommand(ctx),
		newWatchCommand(ctx),
	)
	return cmd
}

func configureLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
