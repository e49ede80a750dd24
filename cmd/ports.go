// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var (
	portsProbe   bool
	portsTimeout time.Duration
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and look for dimmers on them",
	Long: `List the serial ports of this machine with their USB identifiers.

With --probe every port is opened at --baud and asked for its command
protocol version on address 00. Ports that answer are marked as dimmers.

Examples:
  phasecut ports
  phasecut ports --probe --baud 9600

Exit codes:
  0 - Ports listed (with --probe: at least one dimmer found)
  1 - No ports (with --probe: no dimmer answered)
  2 - Port enumeration failed`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsProbe, "probe", false, "Ask each port for a dimmer")
	portsCmd.Flags().DurationVar(&portsTimeout, "timeout", 500*time.Millisecond, "Probe timeout per port")
}

// probePort reports the command protocol version of a dimmer on name.
func probePort(name string) (uint16, error) {
	conn, err := OpenSerialConnection(name, baudRate)
	if err != nil {
		return 0, err
	}
	client := NewClient(conn, portsTimeout)
	defer client.Close()

	return client.Query(dimmer.AddressChannel0, dimmer.CmdGetCmdVersion)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Port enumeration failed: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Phasecut - Serial Ports\n\n")
	if len(ports) == 0 {
		fmt.Printf("No serial ports found\n")
		os.Exit(1)
	}

	found := 0
	for _, port := range ports {
		fmt.Printf("%s\n", port.Name)
		if port.IsUSB {
			fmt.Printf("  USB: %s:%s", port.VID, port.PID)
			if port.SerialNumber != "" {
				fmt.Printf(" serial=%s", port.SerialNumber)
			}
			fmt.Printf("\n")
			if port.Product != "" {
				fmt.Printf("  Product: %s\n", port.Product)
			}
		}

		if !portsProbe {
			continue
		}
		version, err := probePort(port.Name)
		if err != nil {
			log.Debug().Err(err).Str("port", port.Name).Msg("probe failed")
			fmt.Printf("  Dimmer: no\n")
			continue
		}
		found++
		fmt.Printf("  Dimmer: yes (command version %d)\n", version)
	}

	if portsProbe {
		fmt.Printf("\n--- Probe summary ---\n")
		fmt.Printf("Ports: %d, dimmers: %d\n", len(ports), found)
		if found == 0 {
			os.Exit(1)
		}
	}
	return nil
}
