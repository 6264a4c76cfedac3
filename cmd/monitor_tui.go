// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/rcsbridge/pkg/bus"
	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

// Event log entry
type monitorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Messages
type busMsg struct {
	msg *bus.Message
}
type busErrMsg struct {
	err error
}
type monitorTickMsg time.Time

// monitorModel shows the latest thermostat fields reported by a bridge
type monitorModel struct {
	bridgeID string
	busURL   string

	// fields in the order the thermostat first reported them
	keys   []string
	values map[string]string

	statusCount   int
	triggerCount  int
	lastHeartbeat time.Time

	table         table.Model
	eventLog      []monitorLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

func initialMonitorModel(bridgeID, busURL string) monitorModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Field", Width: 20},
			{Title: "Value", Width: 12},
		}),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	return monitorModel{
		bridgeID:      bridgeID,
		busURL:        busURL,
		values:        make(map[string]string),
		table:         t,
		eventLog:      make([]monitorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(len(m.keys)+1, 5))

	case monitorTickMsg:
		return m, monitorTickCmd()

	case busErrMsg:
		m.addLogEntry(fmt.Sprintf("BUS ERROR: %v", msg.err), true)

	case busMsg:
		m.handleBusMessage(msg.msg)
	}

	return m, nil
}

// handleBusMessage folds a message from the bridge into the model
func (m *monitorModel) handleBusMessage(msg *bus.Message) {
	if !strings.EqualFold(msg.Source, m.bridgeID) {
		return
	}

	switch {
	case msg.Schema.Is(bus.SchemaRCSStatus):
		m.statusCount++
		m.keys = nil
		m.values = make(map[string]string, len(msg.Body))
		m.applyFields(msg.Body)
		m.addLogEntry(fmt.Sprintf("status: %s", formatBody(msg.Body)), false)

	case msg.Schema.Is(bus.SchemaRCSTrigger):
		m.triggerCount++
		m.applyFields(msg.Body)
		m.addLogEntry(fmt.Sprintf("trigger: %s", formatBody(msg.Body)), false)

	case msg.Schema.Is(bus.SchemaHeartbeatApp):
		m.lastHeartbeat = time.Now()

	case msg.Schema.Is(bus.SchemaHeartbeatEnd):
		m.addLogEntry("bridge stopped", true)
	}
}

func (m *monitorModel) applyFields(body []bus.NameValue) {
	for _, nv := range body {
		key := strings.ToLower(nv.Name)
		if _, seen := m.values[key]; !seen {
			m.keys = append(m.keys, key)
		}
		m.values[key] = nv.Value
	}

	rows := make([]table.Row, 0, len(m.keys))
	for _, key := range m.keys {
		rows = append(rows, table.Row{rcs.FieldName(key), rcs.FormatValue(key, m.values[key])})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(max(len(rows)+1, 5))
}

func formatBody(body []bus.NameValue) string {
	parts := make([]string, 0, len(body))
	for _, nv := range body {
		parts = append(parts, rcs.FormatField(rcs.Field{Key: strings.ToLower(nv.Name), Value: nv.Value}))
	}
	return strings.Join(parts, ", ")
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, monitorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("RCSBRIDGE - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Bridge: %s | Bus: %s | Press 'q' to quit", m.bridgeID, m.busURL)))
	s.WriteString("\n\n")

	heartbeat := "never"
	if !m.lastHeartbeat.IsZero() {
		heartbeat = time.Since(m.lastHeartbeat).Round(time.Second).String() + " ago"
	}
	s.WriteString(boxStyle.Render(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Status:"), valueStyle.Render(fmt.Sprintf("%d", m.statusCount)),
		labelStyle.Render("Triggers:"), valueStyle.Render(fmt.Sprintf("%d", m.triggerCount)),
		labelStyle.Render("Heartbeat:"), valueStyle.Render(heartbeat),
	)))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Thermostat:"))
	s.WriteString("\n")
	if len(m.keys) == 0 {
		s.WriteString(boxStyle.Render(headerStyle.Render("(waiting for a report)")))
	} else {
		s.WriteString(boxStyle.Render(m.table.View()))
	}
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	used := 10 + len(m.keys)
	logHeight := m.height - used
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05")
			style, marker := infoStyle, "ℹ "
			if entry.isError {
				style, marker = errorStyle, "✗ "
			}
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), style.Render(marker+entry.message)))
		}
	}

	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(logContent.String()))

	return s.String()
}
