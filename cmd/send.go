// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	"github.com/spf13/cobra"
)

var (
	sendAddress uint8
	sendTimeout time.Duration
	sendNoReply bool
)

var sendCmd = &cobra.Command{
	Use:   "send <command> [args]",
	Short: "Send one command to a dimmer and print the reply",
	Long: `Send a single command frame to a dimmer and print its reply.

Write commands:
  off                      switch the channel off
  on                       full brightness (254)
  stop                     freeze a running fade
  set <brightness>         jump to brightness 0-254 (255 holds)
  fade <brightness> <dur>  fade to brightness over dur (e.g. 1500ms, 20s)
  fade-steps <ticks>       raw trigger delay (same effect as timer)
  save                     persist the calibration settings
  load                     reload the persisted settings
  scratch                  restore the built-in settings
  mains <50|60>            set the mains frequency
  timer <ticks>            set the raw trigger delay in timer ticks
  cal-low <ticks>          set the calibration range minimum
  cal-high <ticks>         set the calibration range maximum

Read commands:
  get <set|mains|timer|cal-low|cal-high|cal-range|cmd-version|version>

Numbers accept decimal or 0x-prefixed hex.

Examples:
  phasecut send --port /dev/ttyUSB0 fade 200 5s
  phasecut send --url ws://localhost:8080/dimmer -a 1 get timer

Exit codes:
  0 - Command acknowledged / value received
  1 - NAK or no reply
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Uint8VarP(&sendAddress, "address", "a", dimmer.AddressChannel0, "Dimmer address (0 and 1 are the two channels)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", time.Second, "Time to wait for the reply")
	sendCmd.Flags().BoolVar(&sendNoReply, "no-reply", false, "Do not wait for a reply (multi-address dimmers)")
}

var readCommands = map[string]uint8{
	"set":         dimmer.CmdGetSet,
	"mains":       dimmer.CmdGetMainsHz,
	"timer":       dimmer.CmdGetTimerValue,
	"cal-low":     dimmer.CmdGetCalLow,
	"cal-high":    dimmer.CmdGetCalHigh,
	"cal-range":   dimmer.CmdGetCalRange,
	"cmd-version": dimmer.CmdGetCmdVersion,
	"version":     dimmer.CmdGetVersion,
}

func readCommandNames() string {
	names := make([]string, 0, len(readCommands))
	for name := range readCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return v, nil
}

// buildRequest turns the command line into a request frame.
func buildRequest(address uint8, args []string) (*dimmer.Request, error) {
	name, rest := args[0], args[1:]

	want := func(n int) error {
		if len(rest) != n {
			return fmt.Errorf("%s takes %d argument(s), got %d", name, n, len(rest))
		}
		return nil
	}
	u8 := func() (uint8, error) {
		if err := want(1); err != nil {
			return 0, err
		}
		v, err := parseUint(rest[0], 8)
		return uint8(v), err
	}
	u16 := func() (uint16, error) {
		if err := want(1); err != nil {
			return 0, err
		}
		v, err := parseUint(rest[0], 16)
		return uint16(v), err
	}

	switch name {
	case "off", "on", "stop", "save", "load", "scratch":
		if err := want(0); err != nil {
			return nil, err
		}
		switch name {
		case "off":
			return dimmer.NewOff(address), nil
		case "on":
			return dimmer.NewOnMax(address), nil
		case "stop":
			return dimmer.NewStop(address), nil
		case "save":
			return dimmer.NewSave(address), nil
		case "load":
			return dimmer.NewLoad(address), nil
		default:
			return dimmer.NewLoadScratch(address), nil
		}

	case "set":
		b, err := u8()
		if err != nil {
			return nil, err
		}
		return dimmer.NewSet(address, b), nil

	case "fade":
		if err := want(2); err != nil {
			return nil, err
		}
		b, err := parseUint(rest[0], 8)
		if err != nil {
			return nil, err
		}
		d, err := time.ParseDuration(rest[1])
		if err != nil {
			return nil, fmt.Errorf("invalid fade duration %q: %w", rest[1], err)
		}
		return dimmer.NewSetFade(address, uint8(b), d), nil

	case "fade-steps":
		v, err := u16()
		if err != nil {
			return nil, err
		}
		return dimmer.NewSetFadeSteps(address, v), nil

	case "mains":
		hz, err := u8()
		if err != nil {
			return nil, err
		}
		return dimmer.NewSetMainsHz(address, hz), nil

	case "timer", "cal-low", "cal-high":
		v, err := u16()
		if err != nil {
			return nil, err
		}
		switch name {
		case "timer":
			return dimmer.NewSetTimerValue(address, v), nil
		case "cal-low":
			return dimmer.NewSetCalLow(address, v), nil
		default:
			return dimmer.NewSetCalHigh(address, v), nil
		}

	case "get":
		if err := want(1); err != nil {
			return nil, err
		}
		cmd, ok := readCommands[rest[0]]
		if !ok {
			return nil, fmt.Errorf("unknown read %q (one of: %s)", rest[0], readCommandNames())
		}
		return dimmer.NewRead(address, cmd), nil
	}

	return nil, fmt.Errorf("unknown command %q", name)
}

func runSend(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(sendAddress, args)
	if err != nil {
		return err
	}

	conn, _, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	client := NewClient(conn, sendTimeout)
	defer client.Close()

	if sendNoReply {
		if err := client.Send(req); err != nil {
			fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("%s sent\n", dimmer.FormatCommand(req.Command))
		return nil
	}

	reply, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitCode(err))
	}

	fmt.Printf("%s (0x%02X) addr=%02X: ", dimmer.FormatCommand(req.Command), req.Command, req.Address)
	switch reply.Kind {
	case dimmer.ReplyValue:
		fmt.Printf("%s\n", describeValue(req.Command, reply.Value))
	default:
		fmt.Printf("%s\n", reply.Kind)
	}

	if reply.Kind == dimmer.ReplyNAK {
		os.Exit(1)
	}
	return nil
}

// describeValue prints a read reply with the unit of the command.
func describeValue(cmd uint8, v uint16) string {
	switch cmd {
	case dimmer.CmdGetMainsHz:
		return fmt.Sprintf("%d Hz", v)
	case dimmer.CmdGetTimerValue, dimmer.CmdGetCalLow, dimmer.CmdGetCalHigh, dimmer.CmdGetCalRange:
		return fmt.Sprintf("%d ticks (%.1f us)", v, float64(v)/dimmer.TicksPerMicrosecond)
	default:
		return fmt.Sprintf("%d (0x%X)", v, v)
	}
}
