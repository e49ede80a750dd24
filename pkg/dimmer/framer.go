// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

// Framer states (internal)
const (
	stateIdle = iota
	stateCollecting
	stateDispatch
)

// Frame is one received request body, without STX and ETX.
type Frame struct {
	Body []byte
}

// Framer implements the receive state machine. NUL and space bytes are
// keep-alive padding and are dropped in every state.
type Framer struct {
	state int
	index int
	body  [MaxBodySize]byte
}

// NewFramer creates a framer waiting for STX.
func NewFramer() *Framer {
	return &Framer{state: stateIdle}
}

// Reset returns the framer to idle.
func (f *Framer) Reset() {
	f.state = stateIdle
	f.index = 0
}

// Collecting reports whether a frame is in progress.
func (f *Framer) Collecting() bool {
	return f.state == stateCollecting
}

// DecodeByte processes a single byte through the framing state machine.
// Returns the completed frame on ETX, or nil while the frame is incomplete.
// A body longer than MaxBodySize aborts the frame with a KindFramingOverflow
// error; the caller must not reply to it.
func (f *Framer) DecodeByte(b byte) (*Frame, error) {
	if b == Null || b == Space {
		return nil, nil
	}

	switch f.state {
	case stateIdle:
		if b == STX {
			f.index = 0
			f.state = stateCollecting
		}
		return nil, nil

	case stateCollecting:
		if b != ETX {
			if f.index >= MaxBodySize {
				f.Reset()
				return nil, protocolErrorf(KindFramingOverflow, "receive buffer overflow (max %d bytes)", MaxBodySize)
			}
			f.body[f.index] = b
			f.index++
			return nil, nil
		}
		f.state = stateDispatch
		fallthrough

	case stateDispatch:
		body := make([]byte, f.index)
		copy(body, f.body[:f.index])
		f.Reset()
		return &Frame{Body: body}, nil

	default:
		f.Reset()
		return nil, nil
	}
}
