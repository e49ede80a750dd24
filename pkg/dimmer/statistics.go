// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"fmt"
	"time"
)

// Statistics tracks frame counts and error rates of a responder
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ExecutedFrames   uint64
	FramingOverflows uint64
	MalformedBodies  uint64
	NonHexBytes      uint64
	UnknownAddresses uint64
	SizeMismatches   uint64
	UnknownCommands  uint64
	BadMagic         uint64
	OutOfRange       uint64
	TransportErrors  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one frame. err is what the framer or handler
// returned for it.
func (s *Statistics) Update(err error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if err == nil {
		s.ExecutedFrames++
		return
	}

	switch KindOf(err) {
	case KindFramingOverflow:
		s.FramingOverflows++
	case KindMalformedBody:
		s.MalformedBodies++
	case KindNonHexByte:
		s.NonHexBytes++
	case KindUnknownAddress:
		s.UnknownAddresses++
	case KindSizeMismatch:
		s.SizeMismatches++
	case KindUnknownCommand:
		s.UnknownCommands++
	case KindBadMagic:
		s.BadMagic++
	case KindOutOfRange:
		s.OutOfRange++
	default:
		s.TransportErrors++
	}
}

// Errors returns the number of frames that were not executed cleanly.
// Frames for other addresses are not errors.
func (s *Statistics) Errors() uint64 {
	return s.FramingOverflows + s.MalformedBodies + s.NonHexBytes + s.SizeMismatches +
		s.UnknownCommands + s.BadMagic + s.OutOfRange + s.TransportErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var executedPercent float64
	if s.TotalFrames > 0 {
		executedPercent = float64(s.ExecutedFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:     %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Executed:         %8d (%.1f%%)\n", s.ExecutedFrames, executedPercent)

	rows := []struct {
		label string
		count uint64
	}{
		{"Overflows:", s.FramingOverflows},
		{"Malformed:", s.MalformedBodies},
		{"Non-hex:", s.NonHexBytes},
		{"Other Address:", s.UnknownAddresses},
		{"Size Mismatch:", s.SizeMismatches},
		{"Unknown Cmd:", s.UnknownCommands},
		{"Bad Magic:", s.BadMagic},
		{"Out of Range:", s.OutOfRange},
		{"Transport Err:", s.TransportErrors},
	}
	for _, row := range rows {
		if row.count > 0 {
			result += fmt.Sprintf("%-17s %8d\n", row.label, row.count)
		}
	}

	result += fmt.Sprintf("Frame Rate:       %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:       %8.2f errors/sec\n", s.ErrorRate)

	return result
}
