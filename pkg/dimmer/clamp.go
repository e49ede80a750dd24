// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

// ClampToMin forces out-of-range values to min on BOTH sides: a value above
// max becomes min, not max. Operator input that far out of range is treated
// as garbage and parked at the safe low end.
func ClampToMin(v, min, max uint16) uint16 {
	if v < min || v > max {
		return min
	}
	return v
}

// Clip is the conventional clamp into [min, max].
func Clip(v, min, max uint16) uint16 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// MainsRange returns the raw timer-tick bounds for a mains frequency.
// Anything other than 60 Hz uses the 50 Hz range.
func MainsRange(hz uint8) (min, max uint16) {
	if hz == 60 {
		return RangeMin60Hz, RangeMax60Hz
	}
	return RangeMin50Hz, RangeMax50Hz
}
