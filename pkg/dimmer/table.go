// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned when the calibrated minimum exceeds the maximum.
var ErrInvalidRange = errors.New("calibration range minimum exceeds maximum")

// Table maps brightness level n (1..254) at index n-1 to a pulse delay in
// timer ticks. Higher brightness means a shorter delay, so the table is
// monotonically non-increasing.
type Table [TableSize]uint16

// BuildTable derives the pulse delay table for a calibrated range.
// rangeMax is the delay of brightness 1 and rangeMin the delay of brightness 254.
func BuildTable(rangeMin, rangeMax uint16) (Table, error) {
	var t Table
	if rangeMin > rangeMax {
		return t, fmt.Errorf("%w: min=%d max=%d", ErrInvalidRange, rangeMin, rangeMax)
	}

	delta := uint64(rangeMax - rangeMin)
	var sum uint64
	for i, w := range curveWeights {
		sum += uint64(w)
		scaled := (delta*sum + CurveResolution/2) / CurveResolution
		t[i] = rangeMax - uint16(scaled)
	}
	return t, nil
}

// Delay returns the table entry for brightness 1..254. Brightness 0 has no
// delay (the output is off); values above 254 use the top entry.
func (t *Table) Delay(brightness uint8) uint16 {
	switch {
	case brightness == 0:
		return 0
	case brightness > BrightnessMax:
		return t[TableSize-1]
	}
	return t[brightness-1]
}
