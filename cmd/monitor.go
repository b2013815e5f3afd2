// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/glovetact/vcrsync/pkg/device"
)

var (
	monDelayUs    uint32
	monProfileDir string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for the in-process glove pair",
	Long: `Runs the same bilateral simulation as "pair" behind a terminal UI:
live status panels for both nodes, session shortcut keys, and a command
line that accepts the full console menu (prefix "2:" for the SECONDARY).`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().Uint32Var(&monDelayUs, "delay", 4000, "One-way transport delay (microseconds)")
	monitorCmd.Flags().StringVar(&monProfileDir, "profile-dir", "", "Profile directory (default: in-memory store)")
	rootCmd.AddCommand(monitorCmd)
}

// Focus states
const (
	focusShortcuts = iota
	focusCommand
)

type monLogEntry struct {
	when    time.Time
	text    string
	isError bool
}

type monitorModel struct {
	pair *glovePair

	priStatus device.Status
	secStatus device.Status

	cmdInput     textinput.Model
	focusedField int

	log           []monLogEntry
	maxLogEntries int

	width    int
	height   int
	quitting bool
}

type monTickMsg time.Time

func monTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return monTickMsg(t)
	})
}

func initialMonitorModel(pair *glovePair) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "SESSION_STATUS"
	ti.CharLimit = 120
	ti.Width = 48

	return monitorModel{
		pair:          pair,
		cmdInput:      ti,
		focusedField:  focusShortcuts,
		log:           make([]monLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monTickCmd()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monTickMsg:
		m.pair.do(func() {
			m.priStatus = m.pair.primary.Status()
			m.secStatus = m.pair.second.Status()
		})
		return m, monTickCmd()
	}

	if m.focusedField == focusCommand {
		var cmd tea.Cmd
		m.cmdInput, cmd = m.cmdInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		if m.focusedField == focusShortcuts {
			m.focusedField = focusCommand
			m.cmdInput.Focus()
		} else {
			m.focusedField = focusShortcuts
			m.cmdInput.Blur()
		}
		return m, nil

	case "enter":
		if m.focusedField == focusCommand {
			line := strings.TrimSpace(m.cmdInput.Value())
			m.cmdInput.SetValue("")
			if line != "" {
				m.runConsole(line)
			}
			return m, nil
		}
	}

	if m.focusedField == focusShortcuts {
		switch msg.String() {
		case "q":
			m.quitting = true
			return m, tea.Quit
		case "l":
			m.runConsole("PROFILE_LOAD 0")
		case "s":
			m.runConsole("SESSION_START")
		case "p":
			m.runConsole("SESSION_PAUSE")
		case "r":
			m.runConsole("SESSION_RESUME")
		case "x":
			m.runConsole("SESSION_STOP")
		case "c":
			m.runConsole("CALIBRATE_START")
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.cmdInput, cmd = m.cmdInput.Update(msg)
	return m, cmd
}

func (m *monitorModel) runConsole(line string) {
	resp := m.pair.handle(line)
	m.addLogEntry(fmt.Sprintf("%s -> %s", line, resp), strings.HasPrefix(resp, "ERR"))
}

func (m *monitorModel) addLogEntry(text string, isError bool) {
	m.log = append(m.log, monLogEntry{when: time.Now(), text: text, isError: isError})
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
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

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("VCRSYNC MONITOR"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(
		"| q=quit Tab=command-line l=load s=start p=pause r=resume x=stop c=calibrate"))
	s.WriteString("\n\n")

	// Status panels side by side
	panelWidth := (m.width - 8) / 2
	if panelWidth < 30 {
		panelWidth = 30
	}
	pri := boxStyle.Width(panelWidth).Render(
		renderNodeStatus("PRIMARY", m.priStatus, labelStyle, valueStyle, errorStyle))
	sec := boxStyle.Width(panelWidth).Render(
		renderNodeStatus("SECONDARY", m.secStatus, labelStyle, valueStyle, errorStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, pri, " ", sec))
	s.WriteString("\n\n")

	// Command line
	inputStyle := boxStyle
	if m.focusedField == focusCommand {
		inputStyle = focusedBoxStyle
	}
	s.WriteString(inputStyle.Width(m.width - 4).Render(
		labelStyle.Render("CMD ") + m.cmdInput.View()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderLog(labelStyle, headerStyle, errorStyle, boxStyle))

	return s.String()
}

func renderNodeStatus(name string, st device.Status, labelStyle, valueStyle, errorStyle lipgloss.Style) string {
	var s strings.Builder

	stateStyle := valueStyle
	if st.State.String() == "FAULT" {
		stateStyle = errorStyle
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(name), stateStyle.Render(st.State.String())))
	if st.ProfileName != "" {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Profile:"),
			valueStyle.Render(fmt.Sprintf("%d %s", st.ProfileID, st.ProfileName))))
	} else {
		s.WriteString(fmt.Sprintf("%s none\n", labelStyle.Render("Profile:")))
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Emitted:"), valueStyle.Render(fmt.Sprintf("%d", st.EventsEmitted)),
		labelStyle.Render("Fired:"), valueStyle.Render(fmt.Sprintf("%d", st.Fired))))

	drops := st.DroppedLocal + st.DroppedRemote + st.LateDrops + st.OrderDrops + st.BufferDrops
	dropStr := valueStyle.Render("0")
	if drops > 0 {
		dropStr = errorStyle.Render(fmt.Sprintf("%d", drops))
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Drops:"), dropStr,
		labelStyle.Render("Suppressed:"), valueStyle.Render(fmt.Sprintf("%d", st.Suppressed))))

	lock := "unlocked"
	if st.OffsetLocked {
		lock = fmt.Sprintf("locked %+dus", st.OffsetMicros)
	}
	peer := valueStyle.Render("ok")
	if st.PeerLost {
		peer = errorStyle.Render("LOST")
	} else if !st.Connected {
		peer = errorStyle.Render("disconnected")
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Clock:"), valueStyle.Render(lock),
		labelStyle.Render("Peer:"), peer))

	if st.LastFault != "" {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Fault:"), errorStyle.Render(st.LastFault)))
	}
	return s.String()
}

func (m monitorModel) renderLog(labelStyle, headerStyle, errorStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := 8
	if len(m.log) < logHeight {
		logHeight = len(m.log)
	}
	startIdx := len(m.log) - logHeight

	if len(m.log) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.log); i++ {
			entry := m.log[i]
			style := headerStyle
			if entry.isError {
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(entry.when.Format("15:04:05.000")),
				style.Render(entry.text)))
		}
	}
	return boxStyle.Width(m.width - 4).Render(s.String())
}

func runMonitor(cmd *cobra.Command, args []string) error {
	pair, err := newGlovePair(monDelayUs, monProfileDir, true)
	if err != nil {
		return err
	}
	defer pair.close()
	go pair.run()

	p := tea.NewProgram(initialMonitorModel(pair), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
