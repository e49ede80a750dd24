// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a protocol failure.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindFramingOverflow: the body outgrew the receive buffer; the frame
	// is dropped without a reply.
	KindFramingOverflow
	// KindMalformedBody: body shorter than 4 or of odd length (NAK).
	KindMalformedBody
	// KindNonHexByte: body byte outside 0-9A-F (NAK).
	KindNonHexByte
	// KindUnknownAddress: not one of our channels; no reply at all.
	KindUnknownAddress
	// KindSizeMismatch: payload length wrong for the command (NAK in unicast).
	KindSizeMismatch
	// KindUnknownCommand: command code outside the catalogue (NAK in unicast).
	KindUnknownCommand
	// KindBadMagic: settings command with the wrong magic number; silently ignored.
	KindBadMagic
	// KindOutOfRange: a value was rejected or clamped.
	KindOutOfRange
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindFramingOverflow:
		return "FRAMING_OVERFLOW"
	case KindMalformedBody:
		return "MALFORMED_BODY"
	case KindNonHexByte:
		return "NON_HEX_BYTE"
	case KindUnknownAddress:
		return "UNKNOWN_ADDRESS"
	case KindSizeMismatch:
		return "SIZE_MISMATCH"
	case KindUnknownCommand:
		return "UNKNOWN_COMMAND"
	case KindBadMagic:
		return "BAD_MAGIC"
	case KindOutOfRange:
		return "OUT_OF_RANGE"
	default:
		return "UNKNOWN"
	}
}

// ProtocolError is a classified protocol failure. None of them is fatal:
// the responder carries on with the next frame.
type ProtocolError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface
func (p *ProtocolError) Error() string {
	return p.Message
}

func protocolErrorf(kind ErrorKind, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err. Errors that are not protocol
// errors have KindNone.
func KindOf(err error) ErrorKind {
	var p *ProtocolError
	if errors.As(err, &p) {
		return p.Kind
	}
	return KindNone
}
