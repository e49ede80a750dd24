// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	controlPollInterval time.Duration
	controlTimeout      time.Duration
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling both dimmer channels",
	Long: `Control a two-channel dimmer via an interactive terminal UI.

Features:
  - Live brightness and trigger delay of both channels
  - Set, fade, off, full and stop commands
  - Request statistics (ACK, NAK, timeouts, round trip)
  - Event logging
  - Automatic reconnection on connection loss

Tab cycles between the channel list, the brightness and fade inputs and the
command buttons. Left/right pick a button, enter sends it.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().DurationVar(&controlPollInterval, "poll", 500*time.Millisecond, "Interval between status reads")
	controlCmd.Flags().DurationVar(&controlTimeout, "timeout", 500*time.Millisecond, "Reply timeout per request")
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	client   *Client
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
}

func (cm *connectionManager) getClient() *Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client
}

func (cm *connectionManager) setClient(client *Client, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.client = client
	cm.connInfo = connInfo
}

func runControl(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	// The TUI owns the terminal; log lines would tear it.
	log.Logger = log.Logger.Level(zerolog.Disabled)

	cm := &connectionManager{
		client:   NewClient(conn, controlTimeout),
		connInfo: connInfo,
		done:     make(chan struct{}),
	}

	m := initialControlModel(cm, connInfo)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.watchLoop()

	_, err = p.Run()
	close(cm.done)
	cm.getClient().Close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// watchLoop reconnects whenever the current connection is lost.
func (cm *connectionManager) watchLoop() {
	for {
		client := cm.getClient()
		select {
		case <-cm.done:
			return
		case <-client.Done():
		}

		cm.p.Send(connectionLostMsg{err: client.Err()})
		if !cm.reconnect() {
			return
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	cm.getClient().Close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setClient(NewClient(conn, controlTimeout), connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// exec sends a write command to one channel.
func (cm *connectionManager) exec(ch dimmer.Channel, req *dimmer.Request, label string) tea.Cmd {
	client := cm.getClient()
	return func() tea.Msg {
		start := time.Now()
		err := client.Exec(req)
		return commandResultMsg{
			channel: ch,
			label:   label,
			err:     err,
			rtt:     time.Since(start),
		}
	}
}

// poll reads brightness and trigger delay of every channel.
func (cm *connectionManager) poll() tea.Cmd {
	client := cm.getClient()
	return func() tea.Msg {
		var msg pollResultMsg
		start := time.Now()
		for ch := dimmer.Channel0; ch < dimmer.NumChannels; ch++ {
			address := uint8(ch)
			brightness, err := client.Query(address, dimmer.CmdGetSet)
			if err != nil {
				msg.err = fmt.Errorf("channel %d: %w", ch, err)
				break
			}
			delay, err := client.Query(address, dimmer.CmdGetTimerValue)
			if err != nil {
				msg.err = fmt.Errorf("channel %d: %w", ch, err)
				break
			}
			msg.status[ch] = channelStatus{
				valid:      true,
				brightness: uint8(brightness),
				delay:      delay,
			}
		}
		msg.rtt = time.Since(start)
		return msg
	}
}

// requestOutcome classifies a transaction error for the statistics bar.
func requestOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNAK):
		return "nak"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
