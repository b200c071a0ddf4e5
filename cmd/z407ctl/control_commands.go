package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"z407ctl/internal/ble"
	"z407ctl/internal/ble/protocol"
	"z407ctl/internal/config"
)

// confirmWindow is how long a one-shot command waits for the puck's
// best-effort confirmation before reporting the command as sent-only.
const confirmWindow = time.Second

func newVolumeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Step the volume up or down",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newOneShotCommand(ctx, "up", "Volume one step up", protocol.CmdVolumeUp),
		newOneShotCommand(ctx, "down", "Volume one step down", protocol.CmdVolumeDown),
	)
	return cmd
}

func newBassCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bass",
		Short: "Step the bass level up or down",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newOneShotCommand(ctx, "up", "Bass one step up", protocol.CmdBassUp),
		newOneShotCommand(ctx, "down", "Bass one step down", protocol.CmdBassDown),
	)
	return cmd
}

const mediaKeyCaveat = `

Media keys are known to work over Bluetooth; on AUX their behavior is
unconfirmed and may do nothing.`

func newPlayCommand(ctx *commandContext) *cobra.Command {
	cmd := newOneShotCommand(ctx, "play", "Toggle play/pause", protocol.CmdPlayPause)
	cmd.Long = "Toggle play/pause on the active source." + mediaKeyCaveat
	return cmd
}

func newNextCommand(ctx *commandContext) *cobra.Command {
	cmd := newOneShotCommand(ctx, "next", "Skip to the next track", protocol.CmdNextTrack)
	cmd.Long = "Skip to the next track on the active source." + mediaKeyCaveat
	return cmd
}

func newPrevCommand(ctx *commandContext) *cobra.Command {
	cmd := newOneShotCommand(ctx, "prev", "Skip to the previous track", protocol.CmdPrevTrack)
	cmd.Long = "Skip to the previous track on the active source." + mediaKeyCaveat
	return cmd
}

func newSourceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Switch the active input",
		Long: `Switch the active input. The puck emits a SWITCHED notification only
when the input actually changed; switching to the already-active source
produces no completion event, and that is not an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newOneShotCommand(ctx, "bt", "Switch to Bluetooth", protocol.CmdSwitchBluetooth),
		newOneShotCommand(ctx, "aux", "Switch to AUX", protocol.CmdSwitchAux),
		newOneShotCommand(ctx, "usb", "Switch to USB", protocol.CmdSwitchUSB),
	)
	return cmd
}

func newSoundCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sound",
		Short: "Select a sound-effect preset (1-3)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newOneShotCommand(ctx, "1", "Sound preset 1", protocol.CmdSound1),
		newOneShotCommand(ctx, "2", "Sound preset 2", protocol.CmdSound2),
		newOneShotCommand(ctx, "3", "Sound preset 3", protocol.CmdSound3),
	)
	return cmd
}

func newPairingCommand(ctx *commandContext) *cobra.Command {
	return newOneShotCommand(ctx, "pairing", "Put the puck into Bluetooth pairing mode", protocol.CmdPairing)
}

func newFactoryResetCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "factory-reset",
		Short: "Factory-reset the puck",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("factory-reset wipes the puck's pairings; re-run with --force to confirm")
			}
			return runOneShot(ctx, cmd, protocol.CmdFactoryReset)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the reset")
	return cmd
}

func newOneShotCommand(ctx *commandContext, use, short string, c protocol.Command) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(ctx, cmd, c)
		},
	}
}

// runOneShot connects, handshakes, sends one command, and waits briefly for
// the puck's best-effort confirmation.
func runOneShot(ctx *commandContext, cmd *cobra.Command, c protocol.Command) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg)

	session, teardown, err := dialSession(ctx, cfg, cmd.Context())
	if err != nil {
		return err
	}
	defer teardown()

	events := make(chan protocol.Event, 8)
	session.OnEvent(func(ev protocol.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	if err := session.Send(c); err != nil {
		return err
	}

	want, hasConfirm := c.Confirmation()
	if !hasConfirm {
		fmt.Fprintf(cmd.OutOrStdout(), "%s sent\n", c)
		return nil
	}

	confirmed := false
	deadline := time.After(confirmWindow)
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case want:
				confirmed = true
				fmt.Fprintf(cmd.OutOrStdout(), "%s confirmed\n", c)
				if !isSwitchCommand(c) {
					return nil
				}
				// Keep listening: a SWITCHED event may still follow.
			case protocol.EventSwitchedBluetooth, protocol.EventSwitchedAux, protocol.EventSwitchedUSB:
				fmt.Fprintf(cmd.OutOrStdout(), "input changed: %s\n", ev)
				return nil
			}
		case <-deadline:
			if !confirmed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s sent (no confirmation; the puck only confirms best-effort)\n", c)
			} else if isSwitchCommand(c) {
				fmt.Fprintln(cmd.OutOrStdout(), "no input change reported (already on that source?)")
			}
			return nil
		}
	}
}

func isSwitchCommand(c protocol.Command) bool {
	return c == protocol.CmdSwitchBluetooth || c == protocol.CmdSwitchAux || c == protocol.CmdSwitchUSB
}

// dialSession resolves the puck address (scanning if needed), connects, and
// runs the handshake. The returned teardown closes the session and the
// connection.
func dialSession(ctx *commandContext, cfg *config.Config, cmdCtx context.Context) (*ble.Session, func(), error) {
	adapter := ctx.newAdapter()
	if err := adapter.Enable(); err != nil {
		return nil, nil, fmt.Errorf("enable adapter: %w", err)
	}

	address := ctx.address(cfg)
	if address == "" {
		devices, err := ble.ScanForDevices(adapter, cfg.ScanTimeout())
		if err != nil {
			return nil, nil, err
		}
		if len(devices) == 0 {
			return nil, nil, errors.New("no Z407 puck found; power it on or pass --address")
		}
		address = devices[0].Address
		slog.Info("using scanned puck", "name", devices[0].Name, "address", address)
	}

	conn, err := adapter.Connect(cmdCtx, address)
	if err != nil {
		return nil, nil, err
	}
	session, err := ble.Establish(conn, ble.SessionOptions{StepTimeout: cfg.HandshakeTimeout()})
	if err != nil {
		conn.Disconnect()
		return nil, nil, err
	}
	return session, func() { session.Close() }, nil
}

func applyLogLevel(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	default:
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
