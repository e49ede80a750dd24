// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import "github.com/rs/zerolog"

type options struct {
	log          zerolog.Logger
	settledHook  func(ch Channel, brightness uint8)
	multiAddress bool
}

// Option configures an Engine, Handler or Responder.
type Option func(*options)

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the diagnostic logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithSettledHook registers fn to run once when a channel's fade completes,
// during the tick the channel spends in ModeFadeSettling. fn may start a new
// fade on the channel.
func WithSettledHook(fn func(ch Channel, brightness uint8)) Option {
	return func(o *options) {
		o.settledHook = fn
	}
}

// WithMultiAddress puts the handler in broadcast mode: write commands get no
// ACK or NAK and read commands are ignored.
func WithMultiAddress(on bool) Option {
	return func(o *options) {
		o.multiAddress = on
	}
}
