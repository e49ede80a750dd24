// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"fmt"
	"strconv"
	"time"
)

// Request builder functions create host-side requests ready for encoding.
// They make sure each command carries the payload layout and magic number
// the responder expects.

// Request is a host-side command frame.
type Request struct {
	Address uint8
	Command uint8
	// Payload is already hex encoded.
	Payload []byte
}

// Encode returns the wire bytes: STX, address, command, payload, ETX.
func (r *Request) Encode() []byte {
	out := make([]byte, 0, 6+len(r.Payload))
	out = append(out, STX)
	out = AppendHexU8(out, r.Address)
	out = AppendHexU8(out, r.Command)
	out = append(out, r.Payload...)
	return append(out, ETX)
}

// IsRead reports whether the request expects a value reply.
func (r *Request) IsRead() bool {
	return r.Command&CmdReadFlag != 0
}

func newRequest(address, cmd uint8) *Request {
	return &Request{Address: address, Command: cmd}
}

func newRequestU8(address, cmd, v uint8) *Request {
	return &Request{Address: address, Command: cmd, Payload: AppendHexU8(nil, v)}
}

func newRequestU16(address, cmd uint8, v uint16) *Request {
	return &Request{Address: address, Command: cmd, Payload: AppendHexU16(nil, v)}
}

// NewOff creates an OFF request (0x00).
func NewOff(address uint8) *Request { return newRequest(address, CmdOff) }

// NewOnMax creates an ON_MAX request (0x02): brightness 254.
func NewOnMax(address uint8) *Request { return newRequest(address, CmdOnMax) }

// NewStop creates a STOP request (0x03): hold the current level.
func NewStop(address uint8) *Request { return newRequest(address, CmdStop) }

// NewSet creates a SET request (0x10).
func NewSet(address, brightness uint8) *Request {
	return newRequestU8(address, CmdSet, brightness)
}

// NewSetFade creates a SET_FADE_TIME request (0x11).
// The payload is the target brightness followed by the duration.
func NewSetFade(address, brightness uint8, duration time.Duration) *Request {
	ms := duration.Milliseconds()
	if ms > 0xFFFF {
		ms = 0xFFFF
	} else if ms < 0 {
		ms = 0
	}
	payload := AppendHexU8(nil, brightness)
	payload = AppendHexU16(payload, uint16(ms))
	return &Request{Address: address, Command: CmdSetFadeTime, Payload: payload}
}

// NewSetFadeSteps creates a SET_FADE_STEPS request (0x12).
func NewSetFadeSteps(address uint8, v uint16) *Request {
	return newRequestU16(address, CmdSetFadeSteps, v)
}

// NewSave creates a SAVE request (0x30) with its magic number.
func NewSave(address uint8) *Request { return newRequestU8(address, CmdSave, MagicSave) }

// NewLoad creates a LOAD request (0x31) with its magic number.
func NewLoad(address uint8) *Request { return newRequestU8(address, CmdLoad, MagicLoad) }

// NewLoadScratch creates a LOAD_SCRATCH request (0x32) with its magic number.
func NewLoadScratch(address uint8) *Request {
	return newRequestU8(address, CmdLoadScratch, MagicLoadScratch)
}

// NewSetMainsHz creates a SET_MAINS_HZ request (0x70). Only 50 and 60 take effect.
func NewSetMainsHz(address, hz uint8) *Request {
	return newRequestU8(address, CmdSetMainsHz, hz)
}

// NewSetTimerValue creates a SET_TIMER_VALUE request (0x71).
func NewSetTimerValue(address uint8, ticks uint16) *Request {
	return newRequestU16(address, CmdSetTimerValue, ticks)
}

// NewSetCalLow creates a SET_CAL_LOW request (0x72).
func NewSetCalLow(address uint8, ticks uint16) *Request {
	return newRequestU16(address, CmdSetCalLow, ticks)
}

// NewSetCalHigh creates a SET_CAL_HIGH request (0x73).
func NewSetCalHigh(address uint8, ticks uint16) *Request {
	return newRequestU16(address, CmdSetCalHigh, ticks)
}

// NewRead creates a request for one of the read commands.
func NewRead(address, cmd uint8) *Request {
	return newRequest(address, cmd|CmdReadFlag)
}

// ReplyKind distinguishes the three reply shapes.
type ReplyKind int

// Reply kinds
const (
	ReplyACK ReplyKind = iota
	ReplyNAK
	ReplyValue
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyACK:
		return "ACK"
	case ReplyNAK:
		return "NAK"
	case ReplyValue:
		return "VALUE"
	default:
		return "UNKNOWN"
	}
}

// Reply is a decoded responder reply.
type Reply struct {
	Kind  ReplyKind
	Value uint16
	// Digits is the number of hex digits of a value reply (2 or 4).
	Digits    int
	Timestamp time.Time
}

// maxReplyDigits bounds a value reply body.
const maxReplyDigits = 4

// ReplyDecoder decodes the reply stream on the host side.
type ReplyDecoder struct {
	collecting bool
	digits     []byte
}

// NewReplyDecoder creates a reply decoder.
func NewReplyDecoder() *ReplyDecoder {
	return &ReplyDecoder{digits: make([]byte, 0, maxReplyDigits)}
}

// Reset drops any partial value reply.
func (d *ReplyDecoder) Reset() {
	d.collecting = false
	d.digits = d.digits[:0]
}

// DecodeByte processes one reply byte.
// Returns a completed reply, or nil while a value reply is incomplete.
func (d *ReplyDecoder) DecodeByte(b byte) (*Reply, error) {
	if !d.collecting {
		switch b {
		case ACK:
			return &Reply{Kind: ReplyACK, Timestamp: time.Now()}, nil
		case NAK:
			return &Reply{Kind: ReplyNAK, Timestamp: time.Now()}, nil
		case STX:
			d.collecting = true
			d.digits = d.digits[:0]
			return nil, nil
		case Null, Space, '\r', ETX:
			return nil, nil
		default:
			return nil, fmt.Errorf("unexpected reply byte 0x%02X", b)
		}
	}

	if b != ETX {
		if len(d.digits) >= maxReplyDigits {
			d.Reset()
			return nil, fmt.Errorf("value reply longer than %d digits", maxReplyDigits)
		}
		d.digits = append(d.digits, b)
		return nil, nil
	}

	digits := string(d.digits)
	d.Reset()
	if len(digits) != 2 && len(digits) != 4 {
		return nil, fmt.Errorf("value reply has %d digits", len(digits))
	}
	v, err := strconv.ParseUint(digits, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid value reply %q: %w", digits, err)
	}
	return &Reply{Kind: ReplyValue, Value: uint16(v), Digits: len(digits), Timestamp: time.Now()}, nil
}
