// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"fmt"
	"time"
)

// FormatCommand returns the human-readable name for a command code
func FormatCommand(cmd uint8) string {
	switch cmd {
	// Write commands
	case CmdOff:
		return "OFF"
	case CmdOnMax:
		return "ON_MAX"
	case CmdStop:
		return "STOP"
	case CmdSet:
		return "SET"
	case CmdSetFadeTime:
		return "SET_FADE_TIME"
	case CmdSetFadeSteps:
		return "SET_FADE_STEPS"
	case CmdSave:
		return "SAVE"
	case CmdLoad:
		return "LOAD"
	case CmdLoadScratch:
		return "LOAD_SCRATCH"
	case CmdSetMainsHz:
		return "SET_MAINS_HZ"
	case CmdSetTimerValue:
		return "SET_TIMER_VALUE"
	case CmdSetCalLow:
		return "SET_CAL_LOW"
	case CmdSetCalHigh:
		return "SET_CAL_HIGH"

	// Read commands
	case CmdGetSet:
		return "GET_SET"
	case CmdGetMainsHz:
		return "GET_MAINS_HZ"
	case CmdGetTimerValue:
		return "GET_TIMER_VALUE"
	case CmdGetCalLow:
		return "GET_CAL_LOW"
	case CmdGetCalHigh:
		return "GET_CAL_HIGH"
	case CmdGetCalRange:
		return "GET_CAL_RANGE"
	case CmdGetCmdVersion:
		return "GET_CMD_VERSION"
	case CmdGetVersion:
		return "GET_VERSION"

	default:
		return "UNKNOWN"
	}
}

// FormatPayload decodes a message payload for display. Payloads of the
// wrong size are shown as raw hex characters.
func FormatPayload(msg *Message) string {
	want, ok := PayloadSize(msg.Command)
	if !ok || len(msg.Payload) != want {
		if len(msg.Payload) == 0 {
			return ""
		}
		return fmt.Sprintf("  Payload: %s\n", msg.Payload)
	}

	switch msg.Command {
	case CmdSet:
		return fmt.Sprintf("  Brightness: %d\n", msg.U8(0))
	case CmdSetFadeTime:
		return fmt.Sprintf("  Brightness: %d, Duration: %d ms\n", msg.U8(0), msg.U16(2))
	case CmdSetFadeSteps, CmdSetTimerValue, CmdSetCalLow, CmdSetCalHigh:
		v := msg.U16(0)
		return fmt.Sprintf("  Ticks: %d (%.1f us)\n", v, float64(v)/TicksPerMicrosecond)
	case CmdSave, CmdLoad, CmdLoadScratch:
		return fmt.Sprintf("  Magic: 0x%02X\n", msg.U8(0))
	case CmdSetMainsHz:
		return fmt.Sprintf("  Mains: %d Hz\n", msg.U8(0))
	}
	return ""
}

// FormatMessage formats a decoded request into a human-readable string
func FormatMessage(msg *Message, timestamp time.Time) string {
	direction := "WR"
	if msg.IsRead() {
		direction = "RD"
	}
	result := fmt.Sprintf("[%s] %s %s (0x%02X) addr=%02X\n",
		timestamp.Format("15:04:05.000"), direction, FormatCommand(msg.Command), msg.Command, msg.Address)
	return result + FormatPayload(msg)
}

// FormatReply formats a decoded reply into a human-readable string
func FormatReply(r *Reply) string {
	timestamp := r.Timestamp.Format("15:04:05.000")
	if r.Kind != ReplyValue {
		return fmt.Sprintf("[%s] %s\n", timestamp, r.Kind)
	}
	if r.Digits == 2 {
		return fmt.Sprintf("[%s] VALUE 0x%02x (%d)\n", timestamp, r.Value, r.Value)
	}
	return fmt.Sprintf("[%s] VALUE 0x%04x (%d)\n", timestamp, r.Value, r.Value)
}
