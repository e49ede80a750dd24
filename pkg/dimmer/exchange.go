// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import "sync/atomic"

// Exchange hands a pulse delay from the cooperative scheduler (single writer)
// to the zero-cross handler (single reader) without locks.
//
// The writer always publishes in the order: select slot 1, write slot 0,
// select slot 0, write slot 1. Whenever the reader runs, the selected slot
// holds a complete value: either the previous one or the new one.
type Exchange struct {
	slots    [2]atomic.Uint32
	selector atomic.Uint32
}

// NewExchange returns an exchange with both slots holding v.
func NewExchange(v uint16) *Exchange {
	e := &Exchange{}
	e.slots[0].Store(uint32(v))
	e.slots[1].Store(uint32(v))
	return e
}

// publishSteps is the number of ordered writes performed by Publish.
const publishSteps = 4

// publishStep performs write i of the publish sequence.
func (e *Exchange) publishStep(i int, v uint16) {
	switch i {
	case 0:
		e.selector.Store(1)
	case 1:
		e.slots[0].Store(uint32(v))
	case 2:
		e.selector.Store(0)
	case 3:
		e.slots[1].Store(uint32(v))
	}
}

// Publish makes v the next latched value. Cooperative side only.
func (e *Exchange) Publish(v uint16) {
	for i := 0; i < publishSteps; i++ {
		e.publishStep(i, v)
	}
}

// Latch returns the value in the slot the selector designates.
// Safe to call from the asynchronous side at any time.
func (e *Exchange) Latch() uint16 {
	return uint16(e.slots[e.selector.Load()&1].Load())
}
