// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rcsbridge/pkg/bus"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the reports of a running bridge",
	Long: `Monitor the bridge selected by --instance in an interactive terminal UI.

Shows the latest thermostat fields, updated from rcs.status and rcs.trigger
reports, along with a log of recent events.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	bridgeID := opts.identity().String()

	m := initialMonitorModel(bridgeID, opts.natsURL)
	p := tea.NewProgram(m, tea.WithAltScreen())

	transport, err := bus.DialNATS(bus.NATSConfig{
		URL:           opts.natsURL,
		Name:          bus.Identity{Vendor: appVendor, Device: "monitor", Instance: bus.DefaultInstance()}.String(),
		SubjectPrefix: opts.subjectPrefix,
		Interface:     opts.iface,
		Codec:         opts.codec,
		OnError: func(err error) {
			p.Send(busErrMsg{err: err})
		},
	})
	if err != nil {
		return err
	}
	defer transport.Close()

	if err := transport.Subscribe(func(msg *bus.Message) { p.Send(busMsg{msg: msg}) }); err != nil {
		return err
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
