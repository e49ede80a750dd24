// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	monitorReplies       bool
	monitorErrorsOnly    bool
	monitorStatsInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display dimmer traffic in human-readable format",
	Long: `Continuously decode and display command frames as they arrive.

Attach to the host-to-dimmer line to see requests, or with --replies to the
dimmer-to-host line to see ACK, NAK and read values. Malformed frames are
shown as errors; --errors-only hides everything else. Request statistics
(frames, malformed bodies, overflows, rates) are printed on exit and, with
--stats-interval, periodically.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorReplies, "replies", false, "Decode replies instead of requests")
	monitorCmd.Flags().BoolVar(&monitorErrorsOnly, "errors-only", false, "Only show malformed frames")
	monitorCmd.Flags().DurationVar(&monitorStatsInterval, "stats-interval", 0, "Print frame statistics at this interval (0 = on exit only)")
}

// requestMonitor decodes the host-to-dimmer direction.
type requestMonitor struct {
	framer *dimmer.Framer
	stats  *dimmer.Statistics
}

func (m *requestMonitor) feed(b byte) string {
	frame, err := m.framer.DecodeByte(b)
	if err != nil {
		m.stats.Update(err)
		return fmt.Sprintf("[ERROR] %v\n", err)
	}
	if frame == nil {
		return ""
	}

	now := time.Now()
	msg, err := dimmer.ParseMessage(frame.Body)
	m.stats.Update(err)
	switch {
	case err == nil:
		return dimmer.FormatMessage(msg, now)
	case dimmer.KindOf(err) == dimmer.KindUnknownAddress:
		// Another device on the bus
		return fmt.Sprintf("[%s] OTHER %s\n", now.Format("15:04:05.000"), frame.Body)
	default:
		return fmt.Sprintf("[ERROR] %v (body %q)\n", err, frame.Body)
	}
}

// replyMonitor decodes the dimmer-to-host direction.
type replyMonitor struct {
	decoder *dimmer.ReplyDecoder
}

func (m *replyMonitor) feed(b byte) string {
	reply, err := m.decoder.DecodeByte(b)
	if err != nil {
		return fmt.Sprintf("[ERROR] %v\n", err)
	}
	if reply == nil {
		return ""
	}
	return dimmer.FormatReply(reply)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	direction := "requests"
	if monitorReplies {
		direction = "replies"
	}
	fmt.Printf("Phasecut - Line Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Decoding: %s\n", direction)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var feed func(b byte) string
	stats := dimmer.NewStatistics()
	if monitorReplies {
		feed = (&replyMonitor{decoder: dimmer.NewReplyDecoder()}).feed
	} else {
		feed = (&requestMonitor{framer: dimmer.NewFramer(), stats: stats}).feed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readChan := make(chan []byte, 100)
	go func() {
		defer close(readChan)
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				// A closed WebSocket stays closed
				if errors.Is(err, ErrConnectionClosed) {
					log.Info().Msg("connection closed")
					return
				}
				log.Warn().Err(err).Msg("read error")
				time.Sleep(100 * time.Millisecond)
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			readChan <- data
		}
	}()

	var statsTick <-chan time.Time
	if monitorStatsInterval > 0 && !monitorReplies {
		ticker := time.NewTicker(monitorStatsInterval)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			printMonitorStats(stats)
			return nil

		case data, ok := <-readChan:
			if !ok {
				printMonitorStats(stats)
				return nil
			}
			for _, b := range data {
				out := feed(b)
				if out == "" || (monitorErrorsOnly && !strings.HasPrefix(out, "[ERROR]")) {
					continue
				}
				fmt.Print(out)
			}

		case <-statsTick:
			fmt.Print(stats.String())
		}
	}
}

func printMonitorStats(stats *dimmer.Statistics) {
	if monitorReplies {
		return
	}
	fmt.Printf("\n")
	fmt.Print(stats.String())
}
