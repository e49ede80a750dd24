// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim stands in for the dimmer hardware on a host: a compare timer
// with one trigger pin per channel and a mains source producing zero crossings
// at line frequency.
package sim

import (
	"sync"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
)

// PinState is a snapshot of one trigger output.
type PinState struct {
	Compare uint16
	Mode    dimmer.OutputMode
	High    bool

	// Pulses counts completed trigger pulses.
	Pulses uint64
	// LastDelay is the delay of the most recent rising edge, in ticks after
	// the zero crossing.
	LastDelay uint16
	// LastWidth is the width of the most recent pulse in ticks.
	LastWidth uint16
}

// Timer implements dimmer.Timer and records the trigger pins.
type Timer struct {
	mu   sync.Mutex
	pins [dimmer.NumChannels]PinState
	rise [dimmer.NumChannels]uint16
}

// NewTimer creates a timer with every output disabled.
func NewTimer() *Timer {
	return &Timer{}
}

// SetCompare implements dimmer.Timer.
func (t *Timer) SetCompare(ch dimmer.Channel, ticks uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pins[ch].Compare = ticks
}

// Compare implements dimmer.Timer.
func (t *Timer) Compare(ch dimmer.Channel) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pins[ch].Compare
}

// SetOutput implements dimmer.Timer. Disabling an output drops the pin.
func (t *Timer) SetOutput(ch dimmer.Channel, mode dimmer.OutputMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pins[ch].Mode = mode
	if mode == dimmer.OutputDisabled {
		t.pins[ch].High = false
	}
}

// pending reports whether a compare event of ch is armed within period ticks.
func (t *Timer) pending(ch dimmer.Channel, period uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.pins[ch]
	return p.Mode != dimmer.OutputDisabled && p.Compare < period
}

// match applies the output mode of ch to its pin as the hardware does on a
// compare event.
func (t *Timer) match(ch dimmer.Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &t.pins[ch]
	switch p.Mode {
	case dimmer.OutputSetOnMatch:
		// A pulse cut off by the zero crossing is dropped.
		p.High = true
		t.rise[ch] = p.Compare
		p.LastDelay = p.Compare
	case dimmer.OutputClearOnMatch:
		if p.High {
			p.High = false
			p.Pulses++
			p.LastWidth = p.Compare - t.rise[ch]
		}
	}
}

// Pin returns a snapshot of one trigger output.
func (t *Timer) Pin(ch dimmer.Channel) PinState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pins[ch]
}
