// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	"github.com/spf13/cobra"
)

var (
	pingTimeout  time.Duration
	pingCount    int
	pingInterval time.Duration
	pingAddress  uint8
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a dimmer answers and measure the round trip",
	Long: `Read the command protocol version from a dimmer repeatedly and report
the round-trip time of each read.

The first ping also reads the firmware version. A dimmer in multi-address
mode never replies and fails every ping.

Exit codes:
  0 - All pings answered
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", time.Second, "Timeout for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
	pingCmd.Flags().Uint8VarP(&pingAddress, "address", "a", dimmer.AddressChannel0, "Dimmer address")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	client := NewClient(conn, pingTimeout)
	defer client.Close()

	fmt.Printf("Phasecut - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Address: %02X\n", pingAddress)
	fmt.Printf("Timeout: %v per ping\n\n", pingTimeout)

	successCount := 0
	failCount := 0
	var minRTT, maxRTT, totalRTT time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		version, err := client.Query(pingAddress, dimmer.CmdGetCmdVersion)
		rtt := time.Since(start)

		switch {
		case err == nil:
			successCount++
			totalRTT += rtt
			if minRTT == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
			fmt.Printf("command version %d, rtt=%v\n", version, rtt.Round(time.Microsecond))

			if i == 1 {
				if fw, err := client.Query(pingAddress, dimmer.CmdGetVersion); err == nil {
					fmt.Printf("  firmware version %d\n", fw)
				}
			}

		case errors.Is(err, ErrTimeout):
			fmt.Printf("TIMEOUT (no reply in %v)\n", pingTimeout)
			failCount++

		case errors.Is(err, ErrNAK):
			fmt.Printf("NAK\n")
			failCount++

		default:
			fmt.Printf("FAILED: %v\n", err)
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d replies received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	if successCount > 0 {
		avg := totalRTT / time.Duration(successCount)
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			minRTT.Round(time.Microsecond), avg.Round(time.Microsecond), maxRTT.Round(time.Microsecond))
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
