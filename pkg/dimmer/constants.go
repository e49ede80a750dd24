// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dimmer implements the firmware core of a two-channel AC phase-cut
// dimmer: the ASCII-hex command protocol, the fade engine, the calibration
// table and the zero-cross pulse scheduler.
//
// The package is hardware independent. Timer hardware is reached through the
// Timer interface and the asynchronous event handlers (PulseScheduler.ZeroCross
// and PulseScheduler.CompareMatch) are called by whatever drives the mains
// events: interrupt glue on a microcontroller or the sim package on a host.
package dimmer

// Protocol framing bytes
const (
	STX   = '#'
	ETX   = '\n'
	ACK   = 0x06
	NAK   = 0x15
	Space = ' '
	Null  = 0x00
)

// MaxBodySize is the receive buffer capacity: AA CC D1 D2 D3 ..
const MaxBodySize = 16

// Protocol and firmware versions reported by the read commands
const (
	CmdVersion      = 1
	FirmwareVersion = 0
)

// Channel addresses on the wire
const (
	AddressChannel0 = 0x00
	AddressChannel1 = 0x01
)

// Write commands (high bit clear)
const (
	CmdOff           = 0x00
	CmdOnMax         = 0x02
	CmdStop          = 0x03
	CmdSet           = 0x10
	CmdSetFadeTime   = 0x11
	CmdSetFadeSteps  = 0x12
	CmdSave          = 0x30
	CmdLoad          = 0x31
	CmdLoadScratch   = 0x32
	CmdSetMainsHz    = 0x70
	CmdSetTimerValue = 0x71
	CmdSetCalLow     = 0x72
	CmdSetCalHigh    = 0x73
)

// Read commands (high bit set)
const (
	CmdGetSet        = 0x90
	CmdGetMainsHz    = 0xF0
	CmdGetTimerValue = 0xF1
	CmdGetCalLow     = 0xF2
	CmdGetCalHigh    = 0xF3
	CmdGetCalRange   = 0xF4
	CmdGetCmdVersion = 0xF9
	CmdGetVersion    = 0xFA
)

// CmdReadFlag marks a read command
const CmdReadFlag = 0x80

// Payload sizes in hex characters, after address and command are removed
var payloadSizes = map[uint8]int{
	CmdOff:           0,
	CmdOnMax:         0,
	CmdStop:          0,
	CmdSet:           2,
	CmdSetFadeTime:   6,
	CmdSetFadeSteps:  4,
	CmdSave:          2,
	CmdLoad:          2,
	CmdLoadScratch:   2,
	CmdSetMainsHz:    2,
	CmdSetTimerValue: 4,
	CmdSetCalLow:     4,
	CmdSetCalHigh:    4,

	CmdGetSet:        0,
	CmdGetMainsHz:    0,
	CmdGetTimerValue: 0,
	CmdGetCalLow:     0,
	CmdGetCalHigh:    0,
	CmdGetCalRange:   0,
	CmdGetCmdVersion: 0,
	CmdGetVersion:    0,
}

// PayloadSize returns the expected payload length in hex characters for a
// command, and false for commands outside the catalogue.
func PayloadSize(cmd uint8) (int, bool) {
	n, ok := payloadSizes[cmd]
	return n, ok
}

// Magic numbers gating the settings commands
const (
	MagicSave        = 0x55
	MagicLoad        = 0x66
	MagicLoadScratch = 0x77
)

// Raw timer-tick bounds per mains frequency
const (
	RangeMin50Hz = 10
	RangeMax50Hz = 20000
	RangeMin60Hz = 10
	RangeMax60Hz = 16666
)

// Brightness levels
const (
	BrightnessOff  = 0
	BrightnessMax  = 254
	BrightnessHold = 255
)

// Timer runs at 16 MHz / 8: two ticks per microsecond.
const TicksPerMicrosecond = 2

// PulseWidthMicroseconds is the triac firing pulse width.
const PulseWidthMicroseconds = 50

// PulseWidthTicks is the firing pulse width in timer ticks.
const PulseWidthTicks = PulseWidthMicroseconds * TicksPerMicrosecond

// Channel selects one of the dimmer outputs.
type Channel uint8

// Dimmer outputs
const (
	Channel0 Channel = iota
	Channel1
	NumChannels
)

// Mode is the fade engine state of a channel.
type Mode uint8

// Channel modes
const (
	ModeOff Mode = iota
	ModeOn
	ModeFadeUp
	ModeFadeDown
	// ModeFadeSettling lasts one scheduler tick after a fade reaches its end.
	ModeFadeSettling
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeOn:
		return "ON"
	case ModeFadeUp:
		return "FADE_UP"
	case ModeFadeDown:
		return "FADE_DOWN"
	case ModeFadeSettling:
		return "FADE_SETTLING"
	default:
		return "UNKNOWN"
	}
}
