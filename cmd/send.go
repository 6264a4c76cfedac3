// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rcsbridge/internal/bridge"
	"github.com/Thermoquad/rcsbridge/pkg/bus"
	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

// publishTimeout bounds a one-shot publish including the flush
const publishTimeout = 5 * time.Second

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a command to a running bridge",
	Long: `Publish a command message addressed to the bridge selected by --instance.

The bridge queues the command and sends it to the thermostat on its next
tick; the thermostat's response is published as an rcs.status message.`,
}

var sendHVACModeCmd = &cobra.Command{
	Use:       "hvac-mode <mode>",
	Short:     "Set the thermostat mode (" + strings.Join(rcs.HVACModes(), ", ") + ")",
	Args:      cobra.ExactArgs(1),
	ValidArgs: rcs.HVACModes(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendBasic(cmd, bridge.CommandHVACMode, args[0])
	},
}

var sendFanModeCmd = &cobra.Command{
	Use:       "fan-mode <mode>",
	Short:     "Set the fan mode (" + strings.Join(rcs.FanModes(), ", ") + ")",
	Args:      cobra.ExactArgs(1),
	ValidArgs: rcs.FanModes(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendBasic(cmd, bridge.CommandFanMode, args[0])
	},
}

var sendTransparentCmd = &cobra.Command{
	Use:   "transparent KEY=VALUE...",
	Short: "Send raw KEY=VALUE pairs to the thermostat",
	Example: `  rcsbridge send transparent SP=70
  rcsbridge send transparent SPH=68 SPC=76`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := transparentCommand(clientID(), opts.identity().String(), args)
		if err != nil {
			return err
		}
		return publishOnce(cmd, msg)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.AddCommand(sendHVACModeCmd, sendFanModeCmd, sendTransparentCmd)
}

// clientID is the bus source used by one-shot commands
func clientID() string {
	return bus.Identity{Vendor: appVendor, Device: "cli", Instance: bus.DefaultInstance()}.String()
}

func sendBasic(cmd *cobra.Command, command, mode string) error {
	msg, err := basicCommand(clientID(), opts.identity().String(), command, mode)
	if err != nil {
		return err
	}
	return publishOnce(cmd, msg)
}

// basicCommand builds an hvac.basic command, rejecting modes the bridge
// would not accept
func basicCommand(source, target, command, mode string) (*bus.Message, error) {
	var err error
	switch command {
	case bridge.CommandHVACMode:
		_, err = rcs.NewModeCommand(rcs.DefaultAddress, mode)
	case bridge.CommandFanMode:
		_, err = rcs.NewFanModeCommand(rcs.DefaultAddress, mode)
	default:
		err = fmt.Errorf("%w: %q", bridge.ErrUnknownCommand, command)
	}
	if err != nil {
		return nil, err
	}

	msg := bus.NewMessage(bus.KindCommand, source, bus.SchemaHVACBasic)
	msg.Target = target
	msg.Set("command", command)
	msg.Set("zone", "1")
	msg.Set("mode", mode)
	return msg, nil
}

// transparentCommand builds an hvac.transparent command from KEY=VALUE args
func transparentCommand(source, target string, args []string) (*bus.Message, error) {
	pairs := make([]rcs.Pair, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", rcs.ErrInvalidPair, arg)
		}
		pairs = append(pairs, rcs.Pair{Key: key, Value: value})
	}
	if _, err := rcs.NewTransparentCommand(rcs.DefaultAddress, pairs); err != nil {
		return nil, err
	}

	msg := bus.NewMessage(bus.KindCommand, source, bus.SchemaHVACTransparent)
	msg.Target = target
	for _, p := range pairs {
		msg.Set(p.Key, p.Value)
	}
	return msg, nil
}

// dialBus connects a short-lived client to the bus
func dialBus(name string) (*bus.NATSTransport, error) {
	return bus.DialNATS(bus.NATSConfig{
		URL:           opts.natsURL,
		Name:          name,
		SubjectPrefix: opts.subjectPrefix,
		Interface:     opts.iface,
		Codec:         opts.codec,
	})
}

// publishOnce connects, publishes msg and waits for the server to receive it
func publishOnce(cmd *cobra.Command, msg *bus.Message) error {
	transport, err := dialBus(msg.Source)
	if err != nil {
		return err
	}
	defer transport.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), publishTimeout)
	defer cancel()

	if err := transport.Publish(ctx, msg); err != nil {
		return err
	}
	if err := transport.Flush(ctx); err != nil {
		return fmt.Errorf("failed to deliver %s: %w", msg.Schema, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", msg.Schema, msg.Target)
	return nil
}
