// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"math"
	"testing"
)

// fakeTimer records what the pulse scheduler programs into the hardware.
type fakeTimer struct {
	compare [NumChannels]uint16
	output  [NumChannels]OutputMode
}

func (f *fakeTimer) SetCompare(ch Channel, ticks uint16)   { f.compare[ch] = ticks }
func (f *fakeTimer) Compare(ch Channel) uint16             { return f.compare[ch] }
func (f *fakeTimer) SetOutput(ch Channel, mode OutputMode) { f.output[ch] = mode }

func newTestEngine(opts ...Option) (*Engine, *fakeTimer) {
	timer := &fakeTimer{}
	return NewEngine(ScratchSettings(), timer, opts...), timer
}

// tick simulates n half-cycles, each followed by a scheduler pass.
func tick(e *Engine, n int) {
	for i := 0; i < n; i++ {
		e.Pulses().ZeroCross(20000)
		e.Poll()
	}
}

// ============================================================
// Pulse Scheduler Tests
// ============================================================

func TestPulseScheduler_DisabledChannel(t *testing.T) {
	timer := &fakeTimer{}
	s := NewPulseScheduler(timer, 3000)

	s.ZeroCross(20000)
	for ch := Channel0; ch < NumChannels; ch++ {
		if timer.output[ch] != OutputDisabled {
			t.Errorf("channel %d output = %s, want DISABLED", ch, timer.output[ch])
		}
	}
}

func TestPulseScheduler_FiringSequence(t *testing.T) {
	timer := &fakeTimer{}
	s := NewPulseScheduler(timer, 3000)
	s.SetEnabled(Channel0, true)

	s.ZeroCross(19990)
	if timer.output[Channel0] != OutputSetOnMatch {
		t.Fatalf("output after zero cross = %s, want SET_ON_MATCH", timer.output[Channel0])
	}
	if timer.compare[Channel0] != 3000 {
		t.Fatalf("compare after zero cross = %d, want 3000", timer.compare[Channel0])
	}
	if timer.output[Channel1] != OutputDisabled {
		t.Errorf("channel 1 output = %s, want DISABLED", timer.output[Channel1])
	}

	// Rising edge: pulse end is scheduled one pulse width later.
	s.CompareMatch(Channel0)
	if timer.compare[Channel0] != 3000+PulseWidthTicks {
		t.Errorf("compare after rising edge = %d, want %d", timer.compare[Channel0], 3000+PulseWidthTicks)
	}
	if timer.output[Channel0] != OutputClearOnMatch {
		t.Errorf("output after rising edge = %s, want CLEAR_ON_MATCH", timer.output[Channel0])
	}

	// Falling edge leaves the timer alone.
	s.CompareMatch(Channel0)
	if timer.compare[Channel0] != 3000+PulseWidthTicks {
		t.Errorf("compare after falling edge = %d", timer.compare[Channel0])
	}

	if s.Period() != 19990 {
		t.Errorf("Period() = %d, want 19990", s.Period())
	}
}

func TestPulseScheduler_LatchesExchange(t *testing.T) {
	timer := &fakeTimer{}
	s := NewPulseScheduler(timer, 3000)
	s.SetEnabled(Channel1, true)
	s.Exchange(Channel1).Publish(8000)

	s.ZeroCross(20000)
	if timer.compare[Channel1] != 8000 {
		t.Errorf("compare = %d, want 8000", timer.compare[Channel1])
	}

	// Next half-cycle restarts the pulse sequence.
	s.CompareMatch(Channel1)
	s.CompareMatch(Channel1)
	s.ZeroCross(20000)
	s.CompareMatch(Channel1)
	if timer.compare[Channel1] != 8000+PulseWidthTicks {
		t.Errorf("compare = %d, want %d", timer.compare[Channel1], 8000+PulseWidthTicks)
	}
}

func TestPulseScheduler_ZeroDelayStaysDark(t *testing.T) {
	timer := &fakeTimer{}
	s := NewPulseScheduler(timer, 0)
	s.SetEnabled(Channel0, true)

	s.ZeroCross(20000)
	if timer.output[Channel0] != OutputDisabled {
		t.Errorf("output with zero delay = %s, want DISABLED", timer.output[Channel0])
	}

	s.Exchange(Channel0).Publish(5000)
	s.ZeroCross(20000)
	if timer.output[Channel0] != OutputSetOnMatch || timer.compare[Channel0] != 5000 {
		t.Errorf("output=%s compare=%d, want SET_ON_MATCH at 5000", timer.output[Channel0], timer.compare[Channel0])
	}
}

func TestPulseScheduler_TakeHalfCycles(t *testing.T) {
	s := NewPulseScheduler(&fakeTimer{}, 0)

	if _, ok := s.TakeHalfCycles(); ok {
		t.Fatal("TakeHalfCycles before any zero cross should report false")
	}

	s.ZeroCross(20000)
	s.ZeroCross(20000)
	n, ok := s.TakeHalfCycles()
	if !ok || n != 2 {
		t.Fatalf("TakeHalfCycles() = %d, %v, want 2, true", n, ok)
	}

	if _, ok := s.TakeHalfCycles(); ok {
		t.Error("second TakeHalfCycles should report false")
	}
}

// ============================================================
// Engine Tests
// ============================================================

func TestNewEngine_StartsOff(t *testing.T) {
	e, _ := newTestEngine()
	for ch := Channel0; ch < NumChannels; ch++ {
		if e.Mode(ch) != ModeOff {
			t.Errorf("channel %d mode = %s, want OFF", ch, e.Mode(ch))
		}
		if e.Pulses().Enabled(ch) {
			t.Errorf("channel %d enabled at start", ch)
		}
	}
	if e.Poll() {
		t.Error("Poll without zero cross should do nothing")
	}
}

func TestNewEngine_InvalidRangeUsesScratchTable(t *testing.T) {
	settings := Settings{MainsHz: 50, RangeMin: 9000, RangeMax: 1000}
	e := NewEngine(settings, &fakeTimer{})

	scratch, _ := BuildTable(ScratchRangeMin, ScratchRangeMax)
	if e.Table() != scratch {
		t.Error("engine should fall back to the scratch table")
	}
	if e.Settings() != settings {
		t.Error("settings should be kept as given")
	}
}

func TestSetBrightness(t *testing.T) {
	e, _ := newTestEngine()
	table := e.Table()

	e.SetBrightness(Channel0, 160)
	if e.Mode(Channel0) != ModeOn || e.Brightness(Channel0) != 160 {
		t.Errorf("after SET 160: mode=%s brightness=%d", e.Mode(Channel0), e.Brightness(Channel0))
	}
	if e.DirectValue(Channel0) != table[159] {
		t.Errorf("delay = %d, want %d", e.DirectValue(Channel0), table[159])
	}
	if !e.Pulses().Enabled(Channel0) {
		t.Error("output should be enabled")
	}

	e.SetBrightness(Channel0, BrightnessMax)
	if e.DirectValue(Channel0) != ScratchRangeMin {
		t.Errorf("delay at 254 = %d, want %d", e.DirectValue(Channel0), ScratchRangeMin)
	}

	e.SetBrightness(Channel0, 1)
	if e.DirectValue(Channel0) != 17145 {
		t.Errorf("delay at 1 = %d, want 17145", e.DirectValue(Channel0))
	}

	// The other channel is untouched.
	if e.Mode(Channel1) != ModeOff {
		t.Errorf("channel 1 mode = %s, want OFF", e.Mode(Channel1))
	}
}

func TestSetBrightness_Off(t *testing.T) {
	e, timer := newTestEngine()
	e.SetBrightness(Channel0, 100)
	tick(e, 1)
	if timer.output[Channel0] != OutputSetOnMatch {
		t.Fatalf("output = %s, want SET_ON_MATCH", timer.output[Channel0])
	}

	e.SetBrightness(Channel0, BrightnessOff)
	if e.Mode(Channel0) != ModeOff || e.Brightness(Channel0) != 0 || e.DirectValue(Channel0) != 0 {
		t.Errorf("after OFF: mode=%s brightness=%d delay=%d",
			e.Mode(Channel0), e.Brightness(Channel0), e.DirectValue(Channel0))
	}
	if e.Pulses().Enabled(Channel0) {
		t.Error("output should be disabled")
	}

	tick(e, 1)
	if timer.output[Channel0] != OutputDisabled {
		t.Errorf("output = %s, want DISABLED", timer.output[Channel0])
	}
}

func TestSetBrightness_Hold(t *testing.T) {
	e, _ := newTestEngine()

	// Hold while off is a no-op.
	e.SetBrightness(Channel0, BrightnessHold)
	if e.Mode(Channel0) != ModeOff || e.Pulses().Enabled(Channel0) {
		t.Fatalf("hold while off changed the channel: mode=%s", e.Mode(Channel0))
	}

	e.SetBrightness(Channel0, 100)
	e.SetFade(Channel0, 1000, 200)
	tick(e, 10)
	if e.Brightness(Channel0) != 110 {
		t.Fatalf("brightness after 10 ticks = %d, want 110", e.Brightness(Channel0))
	}

	e.SetBrightness(Channel0, BrightnessHold)
	if e.Mode(Channel0) != ModeOn {
		t.Errorf("mode after hold = %s, want ON", e.Mode(Channel0))
	}
	tick(e, 50)
	if e.Brightness(Channel0) != 110 {
		t.Errorf("brightness after hold = %d, want 110", e.Brightness(Channel0))
	}
}

func TestSetFade_Up(t *testing.T) {
	e, timer := newTestEngine()
	table := e.Table()

	e.SetBrightness(Channel0, 10)
	tick(e, 1)
	e.SetFade(Channel0, 1000, 200) // 100 half-cycles at 50 Hz
	if e.Mode(Channel0) != ModeFadeUp {
		t.Fatalf("mode = %s, want FADE_UP", e.Mode(Channel0))
	}

	prevBrightness := e.Brightness(Channel0)
	prevDelay := e.DirectValue(Channel0)
	for i := 1; i <= 100; i++ {
		tick(e, 1)
		b := e.Brightness(Channel0)
		d := e.DirectValue(Channel0)
		if b < prevBrightness {
			t.Fatalf("tick %d: brightness went down %d -> %d", i, prevBrightness, b)
		}
		if d > prevDelay {
			t.Fatalf("tick %d: delay went up %d -> %d", i, prevDelay, d)
		}
		if d > table[b-1] || (b < BrightnessMax && d < table[b]) {
			t.Fatalf("tick %d: delay %d outside bracket of brightness %d", i, d, b)
		}
		if timer.compare[Channel0] != prevDelay {
			t.Fatalf("tick %d: timer compare %d, want previously published %d", i, timer.compare[Channel0], prevDelay)
		}
		if i == 50 && b != 105 {
			t.Errorf("brightness halfway = %d, want 105", b)
		}
		prevBrightness, prevDelay = b, d
	}

	if e.Brightness(Channel0) != 200 {
		t.Errorf("final brightness = %d, want 200", e.Brightness(Channel0))
	}
	if e.DirectValue(Channel0) != table[199] {
		t.Errorf("final delay = %d, want %d", e.DirectValue(Channel0), table[199])
	}
	if e.Mode(Channel0) != ModeFadeSettling {
		t.Errorf("mode at end = %s, want FADE_SETTLING", e.Mode(Channel0))
	}

	tick(e, 1)
	if e.Mode(Channel0) != ModeOn {
		t.Errorf("mode after settling = %s, want ON", e.Mode(Channel0))
	}
}

func TestSetFade_DownToZero(t *testing.T) {
	e, timer := newTestEngine()

	e.SetBrightness(Channel1, 100)
	e.SetFade(Channel1, 200, 0) // 20 half-cycles
	if e.Mode(Channel1) != ModeFadeDown {
		t.Fatalf("mode = %s, want FADE_DOWN", e.Mode(Channel1))
	}

	tick(e, 19)
	if e.Brightness(Channel1) != 5 {
		t.Errorf("brightness after 19 ticks = %d, want 5", e.Brightness(Channel1))
	}

	tick(e, 1)
	if e.Brightness(Channel1) != 0 || e.DirectValue(Channel1) != 0 {
		t.Errorf("end of fade: brightness=%d delay=%d", e.Brightness(Channel1), e.DirectValue(Channel1))
	}
	if e.Mode(Channel1) != ModeFadeSettling {
		t.Errorf("mode = %s, want FADE_SETTLING", e.Mode(Channel1))
	}
	if e.Pulses().Enabled(Channel1) {
		t.Error("output should be disabled at brightness 0")
	}

	tick(e, 1)
	if e.Mode(Channel1) != ModeOff {
		t.Errorf("mode after settling = %s, want OFF", e.Mode(Channel1))
	}
	if timer.output[Channel1] != OutputDisabled {
		t.Errorf("output = %s, want DISABLED", timer.output[Channel1])
	}
}

func TestSetFade_SameBrightness(t *testing.T) {
	e, _ := newTestEngine()
	e.SetBrightness(Channel0, 80)

	e.SetFade(Channel0, 1000, 80)
	if e.Mode(Channel0) != ModeOn {
		t.Errorf("fade to current brightness changed mode to %s", e.Mode(Channel0))
	}

	e.SetFade(Channel0, 1000, BrightnessHold)
	if e.Mode(Channel0) != ModeOn {
		t.Errorf("fade to hold changed mode to %s", e.Mode(Channel0))
	}
}

func TestSetFade_FromOff(t *testing.T) {
	e, timer := newTestEngine()
	e.SetFade(Channel0, 10000, 10) // 1000 half-cycles, 100 per step
	if e.Mode(Channel0) != ModeFadeUp {
		t.Fatalf("mode = %s, want FADE_UP", e.Mode(Channel0))
	}
	if e.Pulses().Enabled(Channel0) {
		t.Fatal("output armed while brightness is 0")
	}

	for i := 1; i < 100; i++ {
		tick(e, 1)
		if e.Brightness(Channel0) != 0 {
			t.Fatalf("brightness after %d ticks = %d, want 0", i, e.Brightness(Channel0))
		}
		if e.Pulses().Enabled(Channel0) || timer.output[Channel0] != OutputDisabled {
			t.Fatalf("tick %d: output %s while brightness is 0", i, timer.output[Channel0])
		}
	}

	tick(e, 1)
	if e.Brightness(Channel0) != 1 || !e.Pulses().Enabled(Channel0) {
		t.Fatalf("brightness=%d enabled=%v, want 1 and armed", e.Brightness(Channel0), e.Pulses().Enabled(Channel0))
	}
	delay := e.DirectValue(Channel0)
	if delay == 0 {
		t.Error("armed with a zero delay")
	}

	tick(e, 1)
	if timer.output[Channel0] != OutputSetOnMatch || timer.compare[Channel0] != delay {
		t.Errorf("output=%s compare=%d, want SET_ON_MATCH at %d", timer.output[Channel0], timer.compare[Channel0], delay)
	}
}

func TestSetFade_ZeroDuration(t *testing.T) {
	e, _ := newTestEngine()
	e.SetBrightness(Channel0, 10)
	e.SetFade(Channel0, 0, 200)

	tick(e, 1)
	if e.Brightness(Channel0) != 200 || e.Mode(Channel0) != ModeFadeSettling {
		t.Errorf("brightness=%d mode=%s, want 200 FADE_SETTLING", e.Brightness(Channel0), e.Mode(Channel0))
	}
}

func TestSetFade_60Hz(t *testing.T) {
	e, _ := newTestEngine()
	e.SetMainsHz(60)
	e.SetBrightness(Channel0, 10)
	e.SetFade(Channel0, 1000, 130) // 120 half-cycles

	tick(e, 119)
	if e.Mode(Channel0) != ModeFadeUp {
		t.Fatalf("mode after 119 ticks = %s, want FADE_UP", e.Mode(Channel0))
	}
	tick(e, 1)
	if e.Brightness(Channel0) != 130 || e.Mode(Channel0) != ModeFadeSettling {
		t.Errorf("brightness=%d mode=%s", e.Brightness(Channel0), e.Mode(Channel0))
	}
}

func TestSetFade_CounterWrap(t *testing.T) {
	e, _ := newTestEngine()
	e.cycle = math.MaxUint32 - 5

	e.SetBrightness(Channel0, 10)
	e.SetFade(Channel0, 100, 20) // 10 half-cycles, ends past the wrap

	tick(e, 3)
	if e.Brightness(Channel0) != 13 {
		t.Errorf("brightness before wrap = %d, want 13", e.Brightness(Channel0))
	}
	tick(e, 6)
	if e.Cycle() != 3 {
		t.Fatalf("cycle = %d, want 3", e.Cycle())
	}
	if e.Brightness(Channel0) != 19 || e.Mode(Channel0) != ModeFadeUp {
		t.Errorf("after wrap: brightness=%d mode=%s, want 19 FADE_UP", e.Brightness(Channel0), e.Mode(Channel0))
	}
	tick(e, 1)
	if e.Brightness(Channel0) != 20 || e.Mode(Channel0) != ModeFadeSettling {
		t.Errorf("end: brightness=%d mode=%s, want 20 FADE_SETTLING", e.Brightness(Channel0), e.Mode(Channel0))
	}
}

func TestCalcFade_ClampsLateTick(t *testing.T) {
	e, _ := newTestEngine()
	e.SetBrightness(Channel0, 50)
	e.SetFade(Channel0, 100, 60)

	// A scheduler stalled past the end lands on the target.
	e.CalcFade(Channel0, 1000)
	if e.Brightness(Channel0) != 60 || e.Mode(Channel0) != ModeFadeSettling {
		t.Errorf("brightness=%d mode=%s", e.Brightness(Channel0), e.Mode(Channel0))
	}
}

func TestPoll_MissedZeroCrossings(t *testing.T) {
	e, _ := newTestEngine()
	e.SetBrightness(Channel0, 10)
	e.SetFade(Channel0, 1000, 110) // 100 half-cycles

	for i := 0; i < 10; i++ {
		e.Pulses().ZeroCross(20000)
	}
	if !e.Poll() {
		t.Fatal("Poll should run after zero crossings")
	}
	if e.Cycle() != 10 {
		t.Errorf("cycle = %d, want 10", e.Cycle())
	}
	if e.Brightness(Channel0) != 20 {
		t.Errorf("brightness = %d, want 20", e.Brightness(Channel0))
	}
}

func TestSetDirectValue(t *testing.T) {
	e, timer := newTestEngine()
	e.SetBrightness(Channel0, 200)

	e.SetDirectValue(Channel0, 5000)
	if e.DirectValue(Channel0) != 5000 || e.Mode(Channel0) != ModeOn {
		t.Errorf("delay=%d mode=%s", e.DirectValue(Channel0), e.Mode(Channel0))
	}
	if e.Brightness(Channel0) != 0 {
		t.Errorf("brightness = %d, want 0 after a direct value", e.Brightness(Channel0))
	}

	tick(e, 2)
	if timer.compare[Channel0] != 5000 {
		t.Errorf("timer compare = %d, want 5000", timer.compare[Channel0])
	}

	// A fade now starts from brightness 0, not from the light level on the output.
	e.SetFade(Channel0, 1000, 100)
	tick(e, 1)
	if e.Brightness(Channel0) != 1 {
		t.Errorf("brightness = %d, want 1", e.Brightness(Channel0))
	}
}

func TestSettledHook(t *testing.T) {
	var calls []uint8
	e, _ := newTestEngine(WithSettledHook(func(ch Channel, brightness uint8) {
		if ch != Channel0 {
			t.Errorf("hook called for channel %d", ch)
		}
		calls = append(calls, brightness)
	}))

	e.SetBrightness(Channel0, 10)
	e.SetFade(Channel0, 100, 50)
	tick(e, 30)

	if len(calls) != 1 || calls[0] != 50 {
		t.Errorf("hook calls = %v, want [50]", calls)
	}
}

func TestSettledHook_PingPong(t *testing.T) {
	var e *Engine
	var fades int
	e, _ = newTestEngine(WithSettledHook(func(ch Channel, brightness uint8) {
		fades++
		if brightness == 1 {
			e.SetFade(ch, 100, BrightnessMax)
		} else {
			e.SetFade(ch, 100, 1)
		}
	}))

	e.SetBrightness(Channel0, 1)
	e.SetFade(Channel0, 100, BrightnessMax)
	tick(e, 100)

	if fades < 5 {
		t.Errorf("only %d fades completed", fades)
	}
	if m := e.Mode(Channel0); m != ModeFadeUp && m != ModeFadeDown && m != ModeFadeSettling {
		t.Errorf("mode = %s, want a fading mode", m)
	}
}

func TestSetRange(t *testing.T) {
	e, _ := newTestEngine()

	if err := e.SetRangeMin(4000); err != nil {
		t.Fatalf("SetRangeMin failed: %v", err)
	}
	if e.Table()[TableSize-1] != 4000 {
		t.Errorf("last entry = %d, want 4000", e.Table()[TableSize-1])
	}

	before := e.Table()
	if err := e.SetRangeMax(100); err == nil {
		t.Fatal("SetRangeMax below min should fail")
	}
	if e.Settings().RangeMax != 100 {
		t.Errorf("RangeMax = %d, want 100 even though the table was not rebuilt", e.Settings().RangeMax)
	}
	if e.Table() != before {
		t.Error("table should be unchanged after a failed rebuild")
	}
}

func TestSetMainsHz(t *testing.T) {
	e, _ := newTestEngine()
	for _, hz := range []uint8{0, 49, 51, 59, 61, 255} {
		if e.SetMainsHz(hz) {
			t.Errorf("SetMainsHz(%d) accepted", hz)
		}
	}
	if !e.SetMainsHz(60) || e.Settings().MainsHz != 60 {
		t.Error("SetMainsHz(60) not applied")
	}
	if !e.SetMainsHz(50) || e.Settings().MainsHz != 50 {
		t.Error("SetMainsHz(50) not applied")
	}
}
