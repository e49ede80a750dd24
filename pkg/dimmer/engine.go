// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"github.com/rs/zerolog"
)

type channelState struct {
	mode Mode

	startBrightness   uint8
	endBrightness     uint8
	deltaBrightness   uint8
	currentBrightness uint8

	startCycle uint32
	endCycle   uint32
	deltaCycle uint32

	pulseDelay uint16

	// settled is set once the channel has spent a tick in ModeFadeSettling.
	settled bool
}

// Engine is the fade engine. It owns the channel records, the calibration
// settings and the delay table. All methods belong to the cooperative
// context; only the PulseScheduler is touched by the asynchronous handlers.
type Engine struct {
	settings Settings
	table    Table
	pulses   *PulseScheduler
	channels [NumChannels]channelState
	cycle    uint32

	settledHook func(ch Channel, brightness uint8)
	log         zerolog.Logger
}

// NewEngine creates an engine for timer using settings. Both channels start
// Off. If the settings range cannot produce a table the scratch range is used
// for the table and a warning is logged.
func NewEngine(settings Settings, timer Timer, opts ...Option) *Engine {
	o := buildOptions(opts)
	e := &Engine{
		settings:    settings,
		pulses:      NewPulseScheduler(timer, settings.RangeMin),
		settledHook: o.settledHook,
		log:         o.log,
	}

	if err := e.rebuildTable(); err != nil {
		e.log.Warn().Err(err).Msg("using scratch calibration table")
		e.table, _ = BuildTable(ScratchRangeMin, ScratchRangeMax)
	}
	return e
}

// Pulses returns the scheduler to be driven by the hardware events.
func (e *Engine) Pulses() *PulseScheduler {
	return e.pulses
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Table returns a copy of the calibration table.
func (e *Engine) Table() Table {
	return e.table
}

// Cycle returns the half-cycle counter as seen by the cooperative context.
func (e *Engine) Cycle() uint32 {
	return e.cycle
}

func (e *Engine) rebuildTable() error {
	t, err := BuildTable(e.settings.RangeMin, e.settings.RangeMax)
	if err != nil {
		return err
	}
	e.table = t
	e.log.Debug().
		Uint16("range_min", e.settings.RangeMin).
		Uint16("range_max", e.settings.RangeMax).
		Uint16("first", t[0]).
		Uint16("last", t[TableSize-1]).
		Msg("calibration table rebuilt")
	return nil
}

// ApplySettings replaces the settings and rebuilds the table. The settings
// are applied even when the table cannot be rebuilt; the previous table then
// stays in use.
func (e *Engine) ApplySettings(s Settings) error {
	e.settings = s
	return e.rebuildTable()
}

// SetRangeMin sets the calibrated delay of brightness 254 and rebuilds the table.
func (e *Engine) SetRangeMin(v uint16) error {
	e.settings.RangeMin = v
	return e.rebuildTable()
}

// SetRangeMax sets the calibrated delay of brightness 1 and rebuilds the table.
func (e *Engine) SetRangeMax(v uint16) error {
	e.settings.RangeMax = v
	return e.rebuildTable()
}

// SetMainsHz accepts 50 or 60 and reports whether hz was applied.
func (e *Engine) SetMainsHz(hz uint8) bool {
	if hz != 50 && hz != 60 {
		return false
	}
	e.settings.MainsHz = hz
	return true
}

// Mode returns the channel mode.
func (e *Engine) Mode(ch Channel) Mode {
	return e.channels[ch].mode
}

// Brightness returns the channel's logical brightness.
func (e *Engine) Brightness(ch Channel) uint8 {
	return e.channels[ch].currentBrightness
}

// DirectValue returns the pulse delay currently in effect.
func (e *Engine) DirectValue(ch Channel) uint16 {
	return e.channels[ch].pulseDelay
}

// SetBrightness switches a channel immediately.
//
//	0       off: delay cleared, output disabled
//	1..254  on at the calibrated delay for that level
//	255     hold: stops a running fade at its current level; no-op while off
func (e *Engine) SetBrightness(ch Channel, brightness uint8) {
	c := &e.channels[ch]
	c.deltaBrightness = 0
	c.settled = false

	switch brightness {
	case BrightnessOff:
		c.mode = ModeOff
		c.currentBrightness = 0
		c.endBrightness = 0
		c.pulseDelay = 0
		e.pulses.SetEnabled(ch, false)
	case BrightnessHold:
		if c.currentBrightness != 0 {
			c.endBrightness = c.currentBrightness
			c.mode = ModeOn
		}
	default:
		c.mode = ModeOn
		c.currentBrightness = brightness
		c.endBrightness = brightness
		c.pulseDelay = e.table.Delay(brightness)
		e.pulses.SetEnabled(ch, true)
	}

	e.log.Debug().
		Uint8("channel", uint8(ch)).
		Uint8("brightness", c.currentBrightness).
		Uint8("end", c.endBrightness).
		Stringer("mode", c.mode).
		Msg("set brightness")
}

// SetFade starts a timed transition from the current brightness to end.
// The duration is converted to half-cycles at the configured mains frequency.
// A fade to the current brightness, or to the hold value 255, changes nothing.
func (e *Engine) SetFade(ch Channel, durationMs uint32, end uint8) {
	c := &e.channels[ch]
	if end == BrightnessHold || end == c.currentBrightness {
		return
	}

	c.startCycle = e.cycle
	c.deltaCycle = uint32(uint64(e.settings.MainsHz) * 2 * uint64(durationMs) / 1000)
	c.endCycle = c.startCycle + c.deltaCycle
	c.startBrightness = c.currentBrightness
	c.endBrightness = end
	c.settled = false

	if c.startBrightness < c.endBrightness {
		c.mode = ModeFadeUp
		c.deltaBrightness = c.endBrightness - c.startBrightness
	} else {
		c.mode = ModeFadeDown
		c.deltaBrightness = c.startBrightness - c.endBrightness
	}
	// Brightness 0 has no trigger delay; the output arms on the first step.
	e.pulses.SetEnabled(ch, c.startBrightness != 0)

	e.log.Debug().
		Uint8("channel", uint8(ch)).
		Uint32("duration_ms", durationMs).
		Uint32("start_cycle", c.startCycle).
		Uint32("delta_cycle", c.deltaCycle).
		Uint8("start", c.startBrightness).
		Uint8("end", c.endBrightness).
		Stringer("mode", c.mode).
		Msg("set fade")
}

// SetDirectValue puts a raw pulse delay on the output, bypassing the table.
//
// The brightness bookkeeping is reset to 0 because a raw delay has no
// brightness level. A fade started afterwards runs from brightness 0, not
// from the light level actually produced, until SetBrightness re-anchors the
// channel. GetBrightness reports 0 in the meantime.
func (e *Engine) SetDirectValue(ch Channel, v uint16) {
	c := &e.channels[ch]
	c.mode = ModeOn
	c.currentBrightness = 0
	c.endBrightness = 0
	c.deltaBrightness = 0
	c.settled = false
	c.pulseDelay = v
	e.pulses.SetEnabled(ch, true)

	e.log.Debug().Uint8("channel", uint8(ch)).Uint16("delay", v).Msg("set direct value")
}

// CalcFade recomputes brightness and pulse delay of a fading channel at
// half-cycle now. Other modes are left alone.
func (e *Engine) CalcFade(ch Channel, now uint32) {
	c := &e.channels[ch]
	if c.mode != ModeFadeUp && c.mode != ModeFadeDown {
		return
	}

	// Clamp now into [start, end]; the window may wrap around zero.
	if c.deltaCycle == 0 {
		now = c.endCycle
	} else if c.startCycle < c.endCycle {
		if now < c.startCycle || now > c.endCycle {
			now = c.endCycle
		}
	} else if now < c.startCycle && now > c.endCycle {
		now = c.endCycle
	}

	var whole, frac uint64
	if c.deltaCycle == 0 {
		whole = uint64(c.deltaBrightness)
	} else {
		progress := uint64(now-c.startCycle) * uint64(c.deltaBrightness)
		whole = progress / uint64(c.deltaCycle)
		// fractional part of the brightness step, scaled to 0..255
		frac = (progress * 256 / uint64(c.deltaCycle)) & 0xFF
	}

	brightness := int(c.startBrightness)
	if c.mode == ModeFadeUp {
		brightness += int(whole)
	} else {
		brightness -= int(whole)
	}
	if brightness < 0 {
		brightness = 0
	} else if brightness > BrightnessMax {
		brightness = BrightnessMax
	}
	c.currentBrightness = uint8(brightness)

	var delay uint16
	if brightness != 0 {
		delay = e.table[brightness-1]
		if c.mode == ModeFadeUp && brightness < BrightnessMax {
			step := e.table[brightness-1] - e.table[brightness]
			delay -= uint16((uint64(step)*frac + 128) / 256)
		} else if c.mode == ModeFadeDown && brightness > 1 {
			step := e.table[brightness-2] - e.table[brightness-1]
			delay += uint16((uint64(step)*frac + 128) / 256)
		}
	}
	c.pulseDelay = delay
	e.pulses.SetEnabled(ch, brightness != 0)

	if now == c.endCycle {
		c.mode = ModeFadeSettling
		e.log.Debug().Uint8("channel", uint8(ch)).Uint8("brightness", c.currentBrightness).Msg("fade done")
	}
}

// Poll is one step of the cooperative scheduler. When at least one zero
// crossing happened since the previous call it advances the half-cycle
// counter, recomputes running fades and publishes every channel's delay to
// the pulse scheduler. It reports whether a step was taken.
func (e *Engine) Poll() bool {
	n, ok := e.pulses.TakeHalfCycles()
	if !ok {
		return false
	}
	e.cycle += n

	for ch := Channel0; ch < NumChannels; ch++ {
		c := &e.channels[ch]
		switch c.mode {
		case ModeFadeSettling:
			if c.settled {
				c.settled = false
				if c.currentBrightness == 0 {
					c.mode = ModeOff
				} else {
					c.mode = ModeOn
				}
			}
		case ModeFadeUp, ModeFadeDown:
			e.CalcFade(ch, e.cycle)
		}
	}

	for ch := Channel0; ch < NumChannels; ch++ {
		e.pulses.Exchange(ch).Publish(e.channels[ch].pulseDelay)
	}

	for ch := Channel0; ch < NumChannels; ch++ {
		c := &e.channels[ch]
		if c.mode != ModeFadeSettling || c.settled {
			continue
		}
		c.settled = true
		if e.settledHook != nil {
			e.settledHook(ch, c.currentBrightness)
		}
	}
	return true
}
