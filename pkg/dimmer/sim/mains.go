// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	"github.com/rs/zerolog"
)

// Mains drives a PulseScheduler the way the zero-cross detector and the
// compare unit would: one zero crossing per half-cycle, followed by the
// compare events of every armed channel.
type Mains struct {
	timer *Timer
	sched *dimmer.PulseScheduler
	hz    atomic.Uint32
	count atomic.Uint64
	log   zerolog.Logger
}

// NewMains creates a mains source at hz (50 or 60).
func NewMains(timer *Timer, sched *dimmer.PulseScheduler, hz uint8, log zerolog.Logger) *Mains {
	m := &Mains{timer: timer, sched: sched, log: log}
	m.SetHz(hz)
	return m
}

// SetHz changes the line frequency. Anything other than 60 runs at 50 Hz.
func (m *Mains) SetHz(hz uint8) {
	if hz != 60 {
		hz = 50
	}
	if old := m.hz.Swap(uint32(hz)); old != uint32(hz) && old != 0 {
		m.log.Info().Uint32("from", old).Uint8("to", hz).Msg("mains frequency changed")
	}
}

// Hz returns the line frequency.
func (m *Mains) Hz() uint8 {
	return uint8(m.hz.Load())
}

// HalfCycles returns the number of zero crossings produced so far.
func (m *Mains) HalfCycles() uint64 {
	return m.count.Load()
}

// HalfCycle returns the half-cycle duration at the current frequency.
func (m *Mains) HalfCycle() time.Duration {
	return time.Second / time.Duration(2*m.hz.Load())
}

// PeriodTicks returns the half-cycle length in timer ticks.
func (m *Mains) PeriodTicks() uint16 {
	return uint16(uint64(dimmer.TicksPerMicrosecond) * 1_000_000 / uint64(2*m.hz.Load()))
}

// Step runs one half-cycle: the zero crossing, then the rising and falling
// compare events of each channel that fire before the next crossing.
func (m *Mains) Step() {
	period := m.PeriodTicks()
	m.sched.ZeroCross(period)
	m.count.Add(1)

	for ch := dimmer.Channel0; ch < dimmer.NumChannels; ch++ {
		// Rising edge, then the falling edge the scheduler programs in response.
		for edge := 0; edge < 2; edge++ {
			if !m.timer.pending(ch, period) {
				break
			}
			m.timer.match(ch)
			m.sched.CompareMatch(ch)
		}
	}
}

// Run steps the mains at line frequency until ctx is done.
func (m *Mains) Run(ctx context.Context) error {
	hz := m.Hz()
	ticker := time.NewTicker(m.HalfCycle())
	defer ticker.Stop()

	m.log.Debug().Uint8("hz", hz).Msg("mains running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if now := m.Hz(); now != hz {
				hz = now
				ticker.Reset(m.HalfCycle())
			}
			m.Step()
		}
	}
}
