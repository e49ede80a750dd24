// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import "sync/atomic"

// OutputMode is what a channel's trigger pin does on the next compare match.
type OutputMode uint8

// Output modes
const (
	// OutputDisabled disconnects the pin and masks the compare event.
	OutputDisabled OutputMode = iota
	// OutputSetOnMatch drives the pin high on the next match.
	OutputSetOnMatch
	// OutputClearOnMatch drives the pin low on the next match.
	OutputClearOnMatch
)

func (m OutputMode) String() string {
	switch m {
	case OutputDisabled:
		return "DISABLED"
	case OutputSetOnMatch:
		return "SET_ON_MATCH"
	case OutputClearOnMatch:
		return "CLEAR_ON_MATCH"
	default:
		return "UNKNOWN"
	}
}

// Timer is the per-channel compare hardware. The counter restarts at every
// zero crossing; compare values are ticks since the crossing.
type Timer interface {
	SetCompare(ch Channel, ticks uint16)
	Compare(ch Channel) uint16
	SetOutput(ch Channel, mode OutputMode)
}

// PulseScheduler holds the only state shared between the asynchronous
// hardware-event handlers and the cooperative scheduler. ZeroCross and
// CompareMatch run in the asynchronous context and never nest.
type PulseScheduler struct {
	timer Timer

	exchanges [NumChannels]*Exchange
	enabled   [NumChannels]atomic.Bool
	pulse     [NumChannels]atomic.Uint32 // compare events seen this half-cycle

	pending  atomic.Uint32 // half-cycles not yet taken by the scheduler
	captured atomic.Bool   // set on zero crossing, cleared by TakeHalfCycles
	period   atomic.Uint32 // last measured half-cycle length in ticks
}

// NewPulseScheduler creates a scheduler with every output disabled and both
// exchange slots preloaded with initialDelay.
func NewPulseScheduler(timer Timer, initialDelay uint16) *PulseScheduler {
	s := &PulseScheduler{timer: timer}
	for ch := range s.exchanges {
		s.exchanges[ch] = NewExchange(initialDelay)
	}
	return s
}

// Exchange returns the delay exchange of a channel.
func (s *PulseScheduler) Exchange(ch Channel) *Exchange {
	return s.exchanges[ch]
}

// SetEnabled arms or disarms a channel from the next zero crossing on.
func (s *PulseScheduler) SetEnabled(ch Channel, on bool) {
	s.enabled[ch].Store(on)
}

// Enabled reports whether a channel fires on the next half-cycle.
func (s *PulseScheduler) Enabled(ch Channel) bool {
	return s.enabled[ch].Load()
}

// Period returns the last measured half-cycle length in timer ticks.
func (s *PulseScheduler) Period() uint16 {
	return uint16(s.period.Load())
}

// ZeroCross handles the capture event at the start of every half-cycle.
// period is the timer count captured at the crossing.
func (s *PulseScheduler) ZeroCross(period uint16) {
	s.period.Store(uint32(period))

	for ch := Channel0; ch < NumChannels; ch++ {
		if !s.enabled[ch].Load() {
			s.timer.SetOutput(ch, OutputDisabled)
		} else if delay := s.exchanges[ch].Latch(); delay == 0 {
			// A zero delay would fire at the crossing: full conduction.
			s.timer.SetOutput(ch, OutputDisabled)
		} else {
			s.timer.SetOutput(ch, OutputSetOnMatch)
			s.timer.SetCompare(ch, delay)
		}
		s.pulse[ch].Store(0)
	}

	s.pending.Add(1)
	s.captured.Store(true)
}

// CompareMatch handles a compare event. The first event of a half-cycle has
// just raised the pin; it moves the compare one pulse width later and makes
// the next match lower the pin again.
func (s *PulseScheduler) CompareMatch(ch Channel) {
	if s.pulse[ch].Load() == 0 {
		s.timer.SetCompare(ch, s.timer.Compare(ch)+PulseWidthTicks)
		s.timer.SetOutput(ch, OutputClearOnMatch)
	}
	s.pulse[ch].Add(1)
}

// TakeHalfCycles returns the half-cycles elapsed since the previous call and
// false when no zero crossing happened in between. The flag is cleared before
// the counter is read: a crossing landing in between is counted now and
// flagged again for the next call, so ticks are never lost.
func (s *PulseScheduler) TakeHalfCycles() (uint32, bool) {
	if !s.captured.Load() {
		return 0, false
	}
	s.captured.Store(false)
	return s.pending.Swap(0), true
}
