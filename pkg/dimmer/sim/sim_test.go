// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	"github.com/rs/zerolog"
)

func newTestMains(hz uint8) (*dimmer.Engine, *Timer, *Mains) {
	timer := NewTimer()
	settings := dimmer.ScratchSettings()
	settings.MainsHz = hz
	engine := dimmer.NewEngine(settings, timer)
	return engine, timer, NewMains(timer, engine.Pulses(), hz, zerolog.Nop())
}

func TestPeriodTicks(t *testing.T) {
	tests := []struct {
		hz   uint8
		want uint16
		half time.Duration
	}{
		{50, 20000, 10 * time.Millisecond},
		{60, 16666, time.Second / 120},
		{0, 20000, 10 * time.Millisecond},
	}

	for _, tt := range tests {
		_, _, m := newTestMains(tt.hz)
		if got := m.PeriodTicks(); got != tt.want {
			t.Errorf("%d Hz: PeriodTicks() = %d, want %d", tt.hz, got, tt.want)
		}
		if got := m.HalfCycle(); got != tt.half {
			t.Errorf("%d Hz: HalfCycle() = %v, want %v", tt.hz, got, tt.half)
		}
	}
}

func TestStep_FiresEnabledChannel(t *testing.T) {
	engine, timer, m := newTestMains(50)
	engine.SetBrightness(dimmer.Channel0, 160)
	want := engine.DirectValue(dimmer.Channel0)

	// The first half-cycle still latches the power-on delay.
	m.Step()
	engine.Poll()
	m.Step()
	engine.Poll()

	pin := timer.Pin(dimmer.Channel0)
	if pin.Pulses != 2 {
		t.Errorf("Pulses = %d, want 2", pin.Pulses)
	}
	if pin.LastDelay != want {
		t.Errorf("LastDelay = %d, want %d", pin.LastDelay, want)
	}
	if pin.LastWidth != dimmer.PulseWidthTicks {
		t.Errorf("LastWidth = %d, want %d", pin.LastWidth, dimmer.PulseWidthTicks)
	}
	if pin.High {
		t.Error("pin left high after the pulse")
	}

	if other := timer.Pin(dimmer.Channel1); other.Pulses != 0 || other.Mode != dimmer.OutputDisabled {
		t.Errorf("channel 1 = %+v, want disabled and silent", other)
	}

	if engine.Pulses().Period() != 20000 {
		t.Errorf("Period() = %d, want 20000", engine.Pulses().Period())
	}
	if m.HalfCycles() != 2 || engine.Cycle() != 2 {
		t.Errorf("half-cycles = %d, engine cycle = %d", m.HalfCycles(), engine.Cycle())
	}
}

func TestStep_DisabledChannelStopsFiring(t *testing.T) {
	engine, timer, m := newTestMains(50)
	engine.SetBrightness(dimmer.Channel1, 254)
	m.Step()
	engine.Poll()

	engine.SetBrightness(dimmer.Channel1, 0)
	engine.Poll()
	before := timer.Pin(dimmer.Channel1).Pulses

	for i := 0; i < 5; i++ {
		m.Step()
		engine.Poll()
	}
	if got := timer.Pin(dimmer.Channel1).Pulses; got != before {
		t.Errorf("Pulses went from %d to %d after OFF", before, got)
	}
}

func TestStep_FadeFromOffFiresNothingAtZero(t *testing.T) {
	engine, timer, m := newTestMains(50)
	m.Step()
	engine.Poll()

	engine.SetFade(dimmer.Channel0, 10000, 10)
	for i := 0; i < 50; i++ {
		m.Step()
		engine.Poll()
	}
	if b := engine.Brightness(dimmer.Channel0); b != 0 {
		t.Fatalf("brightness = %d, want 0", b)
	}
	if pin := timer.Pin(dimmer.Channel0); pin.Pulses != 0 {
		t.Errorf("Pulses = %d at brightness 0 (last delay %d), want 0", pin.Pulses, pin.LastDelay)
	}

	// Brightness reaches 1 after 100 half-cycles; the next crossing fires.
	for i := 0; i < 51; i++ {
		m.Step()
		engine.Poll()
	}
	pin := timer.Pin(dimmer.Channel0)
	if pin.Pulses == 0 || pin.LastDelay == 0 {
		t.Errorf("pin = %+v, want pulses at a non-zero delay", pin)
	}
}

func TestStep_DelayBeyondHalfCycle(t *testing.T) {
	engine, timer, m := newTestMains(60)
	// 18000 ticks is later than a 60 Hz half-cycle.
	engine.SetDirectValue(dimmer.Channel0, 18000)
	m.Step()
	engine.Poll()
	before := timer.Pin(dimmer.Channel0).Pulses

	m.Step()
	if got := timer.Pin(dimmer.Channel0).Pulses; got != before {
		t.Errorf("Pulses = %d, want %d", got, before)
	}
}

func TestSetHz(t *testing.T) {
	_, _, m := newTestMains(50)
	m.SetHz(60)
	if m.Hz() != 60 {
		t.Errorf("Hz() = %d, want 60", m.Hz())
	}
	m.SetHz(42)
	if m.Hz() != 50 {
		t.Errorf("Hz() = %d, want 50", m.Hz())
	}
}

func TestRun(t *testing.T) {
	_, _, m := newTestMains(60)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := m.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v, want deadline exceeded", err)
	}
	if m.HalfCycles() == 0 {
		t.Error("no half-cycles produced")
	}
}
