// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxFadeMs     = 0xFFFF
	maxLogEntries = 100
)

// Focus states
const (
	focusChannelList = iota
	focusBrightnessInput
	focusFadeInput
	focusButtons
)

// Command buttons, in display order
const (
	buttonSet = iota
	buttonFade
	buttonOff
	buttonOn
	buttonStop
	numButtons
)

var buttonLabels = [numButtons]string{"Set", "Fade", "Off", "Full", "Stop"}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// channelStatus is what the last poll read from a channel
type channelStatus struct {
	valid      bool
	brightness uint8
	delay      uint16
}

// channelItem is one dimmer output in the channel list
type channelItem struct {
	channel dimmer.Channel
	status  channelStatus
}

// Implement list.Item interface
func (c channelItem) Title() string { return fmt.Sprintf("Channel %d", c.channel) }
func (c channelItem) Description() string {
	if !c.status.valid {
		return "unknown"
	}
	if c.status.brightness == dimmer.BrightnessOff {
		return "off"
	}
	return fmt.Sprintf("brightness %d", c.status.brightness)
}
func (c channelItem) FilterValue() string { return strconv.Itoa(int(c.channel)) }

// linkStats counts request outcomes seen by the TUI
type linkStats struct {
	startTime time.Time
	requests  uint64
	ok        uint64
	naks      uint64
	timeouts  uint64
	errors    uint64
	lastRTT   time.Duration
	rate      float64
}

func (s *linkStats) update(err error, n uint64, rtt time.Duration) {
	s.requests += n
	switch requestOutcome(err) {
	case "ok":
		s.ok += n
		s.lastRTT = rtt / time.Duration(n)
	case "nak":
		s.naks += n
	case "timeout":
		s.timeouts += n
	default:
		s.errors += n
	}
}

func (s *linkStats) calculateRates() {
	elapsed := time.Since(s.startTime).Seconds()
	if elapsed > 0 {
		s.rate = float64(s.requests) / elapsed
	}
}

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	channels    []channelItem
	channelList list.Model

	stats    *linkStats
	eventLog []logEntry

	// Control
	brightnessInput textinput.Model
	fadeInput       textinput.Model
	focusedField    int
	selectedButton  int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
	pollInFlight   bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type pollResultMsg struct {
	status [dimmer.NumChannels]channelStatus
	rtt    time.Duration
	err    error
}

type commandResultMsg struct {
	channel dimmer.Channel
	label   string
	rtt     time.Duration
	err     error
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	bi := textinput.New()
	bi.Placeholder = "127"
	bi.CharLimit = 3
	bi.Width = 6

	fi := textinput.New()
	fi.Placeholder = "2000"
	fi.CharLimit = 5
	fi.Width = 8

	channels := make([]channelItem, dimmer.NumChannels)
	items := make([]list.Item, dimmer.NumChannels)
	for ch := dimmer.Channel0; ch < dimmer.NumChannels; ch++ {
		channels[ch] = channelItem{channel: ch}
		items[ch] = channels[ch]
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	channelList := list.New(items, delegate, 26, 8)
	channelList.Title = "Channels"
	channelList.SetShowStatusBar(false)
	channelList.SetShowHelp(false)
	channelList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:         connMgr,
		connInfo:        connInfo,
		channels:        channels,
		channelList:     channelList,
		stats:           &linkStats{startTime: time.Now()},
		eventLog:        make([]logEntry, 0),
		brightnessInput: bi,
		fadeInput:       fi,
		focusedField:    focusChannelList,
		width:           80,
		height:          24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(controlPollInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.channelList, _ = m.channelList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.calculateRates()
		if !m.connectionLost && !m.pollInFlight {
			m.pollInFlight = true
			cmds = append(cmds, m.connMgr.poll())
		}
		cmds = append(cmds, controlTickCmd())
		return m, tea.Batch(cmds...)

	case pollResultMsg:
		m.pollInFlight = false
		m.processPoll(msg)

	case commandResultMsg:
		m.stats.update(msg.err, 1, msg.rtt)
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Channel %d %s: %v", msg.channel, msg.label, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Channel %d %s: ACK (%v)", msg.channel, msg.label, msg.rtt.Round(time.Millisecond)), false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.pollInFlight = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)
		} else {
			m.addLogEntry("Connection lost - reconnecting...", true)
		}

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusBrightnessInput:
		m.brightnessInput, cmd = m.brightnessInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusFadeInput:
		m.fadeInput, cmd = m.fadeInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusChannelList:
		m.channelList, cmd = m.channelList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter()

	case "left", "h":
		if m.focusedField == focusButtons {
			m.selectedButton = (m.selectedButton + numButtons - 1) % numButtons
			return m, nil
		}

	case "right", "l":
		if m.focusedField == focusButtons {
			m.selectedButton = (m.selectedButton + 1) % numButtons
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusBrightnessInput:
		m.brightnessInput, cmd = m.brightnessInput.Update(msg)
	case focusFadeInput:
		m.fadeInput, cmd = m.fadeInput.Update(msg)
	case focusChannelList:
		m.channelList, cmd = m.channelList.Update(msg)
	}
	return m, cmd
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	m.focusedField = (m.focusedField + delta + focusButtons + 1) % (focusButtons + 1)

	m.brightnessInput.Blur()
	m.fadeInput.Blur()
	switch m.focusedField {
	case focusBrightnessInput:
		m.brightnessInput.Focus()
	case focusFadeInput:
		m.fadeInput.Focus()
	}
	return m
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.focusedField {
	case focusBrightnessInput:
		return m.sendCommand(buttonSet)
	case focusFadeInput:
		return m.sendCommand(buttonFade)
	case focusButtons:
		return m.sendCommand(m.selectedButton)
	}
	return m, nil
}

func (m controlModel) View() string {
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

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 1)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("PHASECUT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (channels) | right panel (control)
	leftWidth := 28
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusChannelList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	channelPanel := listStyle.Render(m.channelList.View())

	controlContent := m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle)
	controlPanel := boxStyle.Width(rightWidth).Render(controlContent)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, channelPanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.getSelectedChannel()
	if selected == nil {
		s.WriteString(headerStyle.Render("No channel selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s Channel %d (address %02X)\n", statsLabelStyle.Render("Selected:"), selected.channel, uint8(selected.channel)))
	if selected.status.valid {
		delayUs := float64(selected.status.delay) / dimmer.TicksPerMicrosecond
		s.WriteString(fmt.Sprintf("%s %s  %s %s\n\n",
			statsLabelStyle.Render("Brightness:"),
			statsValueStyle.Render(fmt.Sprintf("%d/%d", selected.status.brightness, dimmer.BrightnessMax)),
			statsLabelStyle.Render("Delay:"),
			statsValueStyle.Render(fmt.Sprintf("%d ticks (%.1f us)", selected.status.delay, delayUs))))
	} else {
		s.WriteString(headerStyle.Render("No status yet"))
		s.WriteString("\n\n")
	}

	renderInput := func(label string, in textinput.Model, focused bool) {
		s.WriteString(statsLabelStyle.Render(label))
		if focused {
			s.WriteString(in.View())
		} else {
			val := in.Value()
			if val == "" {
				val = in.Placeholder
			}
			s.WriteString(fmt.Sprintf("[%s]", val))
		}
		s.WriteString("\n")
	}
	renderInput("Brightness: ", m.brightnessInput, m.focusedField == focusBrightnessInput)
	renderInput("Fade (ms):  ", m.fadeInput, m.focusedField == focusFadeInput)
	s.WriteString("\n")

	for i, label := range buttonLabels {
		text := fmt.Sprintf("[ %s ]", label)
		if m.focusedField == focusButtons && m.selectedButton == i {
			s.WriteString(focusedButtonStyle.Render(text))
		} else {
			s.WriteString(buttonStyle.Render(text))
		}
		s.WriteString(" ")
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	failures := m.stats.naks + m.stats.timeouts + m.stats.errors
	failStyle := statsValueStyle
	if failures > 0 {
		failStyle = errorStyle
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Requests:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.requests)),
		statsLabelStyle.Render("OK:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.ok)),
		statsLabelStyle.Render("NAK/Timeout:"), failStyle.Render(fmt.Sprintf("%d/%d", m.stats.naks, m.stats.timeouts)),
		statsLabelStyle.Render("RTT:"), statsValueStyle.Render(m.stats.lastRTT.Round(time.Microsecond).String()),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f req/s", m.stats.rate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processPoll(msg pollResultMsg) {
	reads := uint64(0)
	for ch := range msg.status {
		if msg.status[ch].valid {
			reads += 2
		}
	}
	if reads > 0 {
		m.stats.update(nil, reads, msg.rtt)
	}
	if msg.err != nil {
		m.stats.update(msg.err, 1, 0)
		m.addLogEntry(fmt.Sprintf("Status read failed: %v", msg.err), true)
	}

	for ch, status := range msg.status {
		if !status.valid {
			continue
		}
		old := m.channels[ch].status
		m.channels[ch].status = status
		if old.valid && old.brightness == 0 && status.brightness != 0 {
			m.addLogEntry(fmt.Sprintf("Channel %d on", ch), false)
		} else if old.valid && old.brightness != 0 && status.brightness == 0 {
			m.addLogEntry(fmt.Sprintf("Channel %d off", ch), false)
		}
	}
	m.updateChannelList()
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) sendCommand(button int) (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	selected := m.getSelectedChannel()
	if selected == nil {
		return m, nil
	}
	address := uint8(selected.channel)

	var req *dimmer.Request
	var label string
	switch button {
	case buttonSet, buttonFade:
		brightness, err := m.parseBrightness()
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		if button == buttonSet {
			req = dimmer.NewSet(address, brightness)
			label = fmt.Sprintf("SET %d", brightness)
			break
		}
		ms, err := m.parseFadeMs()
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		req = dimmer.NewSetFade(address, brightness, time.Duration(ms)*time.Millisecond)
		label = fmt.Sprintf("FADE %d in %d ms", brightness, ms)
	case buttonOff:
		req, label = dimmer.NewOff(address), "OFF"
	case buttonOn:
		req, label = dimmer.NewOnMax(address), "ON_MAX"
	case buttonStop:
		req, label = dimmer.NewStop(address), "STOP"
	default:
		return m, nil
	}

	return m, m.connMgr.exec(selected.channel, req, label)
}

func (m *controlModel) parseBrightness() (uint8, error) {
	s := m.brightnessInput.Value()
	if s == "" {
		s = m.brightnessInput.Placeholder
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil || v > dimmer.BrightnessMax {
		return 0, fmt.Errorf("brightness must be between %d and %d", dimmer.BrightnessOff, dimmer.BrightnessMax)
	}
	return uint8(v), nil
}

func (m *controlModel) parseFadeMs() (uint16, error) {
	s := m.fadeInput.Value()
	if s == "" {
		s = m.fadeInput.Placeholder
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || v > maxFadeMs {
		return 0, fmt.Errorf("fade time must be between 0 and %d ms", maxFadeMs)
	}
	return uint16(v), nil
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m *controlModel) getSelectedChannel() *channelItem {
	idx := m.channelList.Index()
	if idx < 0 || idx >= len(m.channels) {
		return nil
	}
	return &m.channels[idx]
}

func (m *controlModel) updateChannelList() {
	items := make([]list.Item, len(m.channels))
	for i, c := range m.channels {
		items[i] = c
	}
	m.channelList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 6 {
		listHeight = 6
	}
	m.channelList.SetSize(26, listHeight)
}
