// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rcsbridge/internal/bridge"
	"github.com/Thermoquad/rcsbridge/pkg/bus"
)

var errNoReply = errors.New("no reply from bridge")

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the configuration of a running bridge",
}

var configPollRateCmd = &cobra.Command{
	Use:   "prate <seconds>",
	Short: fmt.Sprintf("Set the poll rate (%d-%d seconds)", bridge.MinPollRate, bridge.MaxPollRate),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := pollRateCommand(clientID(), opts.identity().String(), args[0])
		if err != nil {
			return err
		}
		return publishOnce(cmd, msg)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the bridge's current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPollRateCmd, configShowCmd)
}

// pollRateCommand builds a config.response setting the poll rate
func pollRateCommand(source, target, value string) (*bus.Message, error) {
	rate, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", bridge.ErrPollRateRange, value)
	}
	if rate < bridge.MinPollRate || rate > bridge.MaxPollRate {
		return nil, fmt.Errorf("%w: %d not in [%d,%d]", bridge.ErrPollRateRange, rate, bridge.MinPollRate, bridge.MaxPollRate)
	}

	msg := bus.NewMessage(bus.KindCommand, source, bus.SchemaConfigResponse)
	msg.Target = target
	msg.Set(bridge.ConfigPollRate, strconv.Itoa(rate))
	return msg, nil
}

// isConfigReply reports whether msg is the bridge's answer to a
// config.current request sent by id
func isConfigReply(msg *bus.Message, bridgeID, id string) bool {
	return msg.Kind == bus.KindStatus &&
		msg.Schema.Is(bus.SchemaConfigCurrent) &&
		strings.EqualFold(msg.Source, bridgeID) &&
		msg.IsFor(id)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	id := clientID()
	bridgeID := opts.identity().String()

	transport, err := dialBus(id)
	if err != nil {
		return err
	}
	defer transport.Close()

	replies := make(chan *bus.Message, 1)
	err = transport.Subscribe(func(msg *bus.Message) {
		if !isConfigReply(msg, bridgeID, id) {
			return
		}
		select {
		case replies <- msg:
		default:
		}
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), publishTimeout)
	defer cancel()

	req := bus.NewMessage(bus.KindCommand, id, bus.SchemaConfigCurrent)
	req.Target = bridgeID
	if err := transport.Publish(ctx, req); err != nil {
		return err
	}

	select {
	case reply := <-replies:
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n", reply.Source)
		for _, nv := range reply.Body {
			fmt.Fprintf(out, "  %s = %s\n", nv.Name, nv.Value)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w %s", errNoReply, bridgeID)
	}
}
