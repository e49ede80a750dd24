// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"github.com/rs/zerolog"
)

// Responder runs received bytes through the framer and the handler and keeps
// statistics. It is the command side of the cooperative scheduler: call it
// from the same goroutine as Engine.Poll.
type Responder struct {
	framer  *Framer
	handler *Handler
	stats   *Statistics
	log     zerolog.Logger
}

// NewResponder wraps handler with a fresh framer and statistics.
func NewResponder(handler *Handler, opts ...Option) *Responder {
	o := buildOptions(opts)
	return &Responder{
		framer:  NewFramer(),
		handler: handler,
		stats:   NewStatistics(),
		log:     o.log,
	}
}

// Statistics returns the live statistics.
func (r *Responder) Statistics() *Statistics {
	return r.stats
}

// Handler returns the command handler.
func (r *Responder) Handler() *Handler {
	return r.handler
}

// Feed processes received bytes. Protocol errors are logged and counted;
// only transport errors writing a reply are returned, after the remaining
// bytes have been processed.
func (r *Responder) Feed(p []byte) error {
	var firstErr error
	for _, b := range p {
		frame, err := r.framer.DecodeByte(b)
		if err != nil {
			r.stats.Update(err)
			r.log.Debug().Err(err).Msg("frame dropped")
			continue
		}
		if frame == nil {
			continue
		}

		err = r.handler.Handle(frame)
		r.stats.Update(err)
		if err == nil {
			continue
		}
		if KindOf(err) == KindNone && firstErr == nil {
			firstErr = err
		}
		if KindOf(err) != KindUnknownAddress {
			r.log.Debug().Err(err).Str("body", string(frame.Body)).Msg("frame not executed")
		}
	}
	return firstErr
}

// Write implements io.Writer so a transport can be copied into the responder.
func (r *Responder) Write(p []byte) (int, error) {
	if err := r.Feed(p); err != nil {
		return len(p), err
	}
	return len(p), nil
}
