// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Handler decodes request frames and dispatches them to the engine and the
// settings store, writing ACK, NAK or read replies to out.
//
// In unicast mode (the default) every accepted write is ACKed, and malformed
// frames, size mismatches and unknown commands are NAKed. In multi-address
// mode several responders share the line, so nothing is ever written back and
// reads are ignored.
type Handler struct {
	engine       *Engine
	store        Store
	out          io.Writer
	multiAddress bool
	log          zerolog.Logger
}

// NewHandler creates a handler replying on out.
func NewHandler(engine *Engine, store Store, out io.Writer, opts ...Option) *Handler {
	o := buildOptions(opts)
	return &Handler{
		engine:       engine,
		store:        store,
		out:          out,
		multiAddress: o.multiAddress,
		log:          o.log,
	}
}

// SetMultiAddress switches between unicast and multi-address mode.
func (h *Handler) SetMultiAddress(on bool) {
	h.multiAddress = on
}

// MultiAddress reports whether multi-address mode is active.
func (h *Handler) MultiAddress() bool {
	return h.multiAddress
}

func (h *Handler) write(p ...byte) error {
	if _, err := h.out.Write(p); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}

func (h *Handler) replyU8(v uint8) error {
	if _, err := fmt.Fprintf(h.out, "#%02x\n", v); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}

func (h *Handler) replyU16(v uint16) error {
	if _, err := fmt.Fprintf(h.out, "#%04x\n", v); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}

// Handle decodes and dispatches one frame. It returns nil when the command
// was executed, a *ProtocolError describing why it was not (or why it only
// partly took effect), or a transport error from writing the reply. The
// reply, if any, has already been written either way.
func (h *Handler) Handle(f *Frame) error {
	msg, err := ParseMessage(f.Body)
	if err != nil {
		h.log.Debug().Err(err).Bytes("body", f.Body).Msg("rejected frame")
		// Framing errors are caught before the address is known, so every
		// responder NAKs them, multi-address mode included.
		if KindOf(err) == KindUnknownAddress {
			return err
		}
		return errors.Join(err, h.write(NAK))
	}

	h.log.Debug().
		Uint8("address", msg.Address).
		Str("command", FormatCommand(msg.Command)).
		Bytes("payload", msg.Payload).
		Msg("dispatch")

	if msg.IsRead() {
		return h.handleRead(msg)
	}
	return h.handleWrite(msg)
}

// checkSize is the first check of every command. In unicast mode a mismatch
// is NAKed.
func (h *Handler) checkSize(msg *Message) error {
	want, _ := PayloadSize(msg.Command)
	if len(msg.Payload) != want {
		err := protocolErrorf(KindSizeMismatch, "%s: payload %d bytes, want %d",
			FormatCommand(msg.Command), len(msg.Payload), want)
		if h.multiAddress {
			return err
		}
		return errors.Join(err, h.write(NAK))
	}
	return nil
}

func (h *Handler) unknownCommand(msg *Message) error {
	err := protocolErrorf(KindUnknownCommand, "incorrect command 0x%02x (address 0x%02x)", msg.Command, msg.Address)
	if h.multiAddress {
		return err
	}
	return errors.Join(err, h.write(NAK))
}

func (h *Handler) handleWrite(msg *Message) error {
	if _, ok := PayloadSize(msg.Command); !ok {
		return h.unknownCommand(msg)
	}
	if err := h.checkSize(msg); err != nil {
		return err
	}

	// The ACK goes out before the command runs; a failed ACK does not stop it.
	var ackErr error
	if !h.multiAddress {
		ackErr = h.write(ACK)
	}
	if err := h.execute(msg); err != nil {
		return errors.Join(err, ackErr)
	}
	return ackErr
}

func (h *Handler) execute(msg *Message) error {
	ch := msg.Channel
	switch msg.Command {
	case CmdOff:
		h.engine.SetBrightness(ch, BrightnessOff)

	case CmdOnMax:
		h.engine.SetBrightness(ch, BrightnessMax)

	case CmdStop:
		h.engine.SetBrightness(ch, BrightnessHold)

	case CmdSet:
		h.engine.SetBrightness(ch, msg.U8(0))

	case CmdSetFadeTime:
		h.engine.SetFade(ch, uint32(msg.U16(2)), msg.U8(0))

	case CmdSetFadeSteps, CmdSetTimerValue:
		// Fade step generation from a raw value is not implemented;
		// both commands apply the value directly.
		raw := msg.U16(0)
		min, max := MainsRange(h.engine.Settings().MainsHz)
		v := ClampToMin(raw, min, max)
		h.engine.SetDirectValue(ch, v)
		if v != raw {
			return protocolErrorf(KindOutOfRange, "timer value %d outside [%d, %d], using %d", raw, min, max, v)
		}

	case CmdSave:
		if magic := msg.U8(0); magic != MagicSave {
			return protocolErrorf(KindBadMagic, "save: bad magic 0x%02x", magic)
		}
		s := h.engine.Settings()
		s.Version = FirmwareVersion
		if err := h.engine.ApplySettings(s); err != nil {
			h.log.Warn().Err(err).Msg("save: table not rebuilt")
		}
		if err := h.store.Save(s); err != nil {
			h.log.Error().Err(err).Msg("save failed")
			return err
		}
		h.log.Info().Uint8("mains_hz", s.MainsHz).Uint16("range_min", s.RangeMin).Uint16("range_max", s.RangeMax).Msg("settings saved")

	case CmdLoad:
		if magic := msg.U8(0); magic != MagicLoad {
			return protocolErrorf(KindBadMagic, "load: bad magic 0x%02x", magic)
		}
		s, err := LoadSettings(h.store)
		if err != nil {
			h.log.Warn().Err(err).Msg("load failed, using scratch settings")
		}
		if err := h.engine.ApplySettings(s); err != nil {
			return protocolErrorf(KindOutOfRange, "load: %v", err)
		}
		h.log.Info().Uint8("mains_hz", s.MainsHz).Uint16("range_min", s.RangeMin).Uint16("range_max", s.RangeMax).Msg("settings loaded")

	case CmdLoadScratch:
		if magic := msg.U8(0); magic != MagicLoadScratch {
			return protocolErrorf(KindBadMagic, "load scratch: bad magic 0x%02x", magic)
		}
		if err := h.engine.ApplySettings(ScratchSettings()); err != nil {
			return protocolErrorf(KindOutOfRange, "load scratch: %v", err)
		}
		h.log.Info().Msg("scratch settings loaded")

	case CmdSetMainsHz:
		if hz := msg.U8(0); !h.engine.SetMainsHz(hz) {
			return protocolErrorf(KindOutOfRange, "mains frequency %d Hz not supported", hz)
		}

	case CmdSetCalLow:
		if err := h.engine.SetRangeMin(msg.U16(0)); err != nil {
			return protocolErrorf(KindOutOfRange, "calibration low: %v", err)
		}

	case CmdSetCalHigh:
		if err := h.engine.SetRangeMax(msg.U16(0)); err != nil {
			return protocolErrorf(KindOutOfRange, "calibration high: %v", err)
		}

	default:
		// Read codes never get here; the catalogue has no other writes.
		return h.unknownCommand(msg)
	}
	return nil
}

func (h *Handler) handleRead(msg *Message) error {
	if h.multiAddress {
		return nil
	}
	if _, ok := PayloadSize(msg.Command); !ok {
		return h.unknownCommand(msg)
	}
	if err := h.checkSize(msg); err != nil {
		return err
	}

	s := h.engine.Settings()
	switch msg.Command {
	case CmdGetSet:
		return h.replyU8(h.engine.Brightness(msg.Channel))
	case CmdGetMainsHz:
		return h.replyU8(s.MainsHz)
	case CmdGetTimerValue:
		return h.replyU16(h.engine.DirectValue(msg.Channel))
	case CmdGetCalLow:
		return h.replyU16(s.RangeMin)
	case CmdGetCalHigh:
		return h.replyU16(s.RangeMax)
	case CmdGetCalRange:
		if s.MainsHz == 50 {
			return h.replyU16(RangeMax50Hz)
		}
		return h.replyU16(RangeMax60Hz)
	case CmdGetCmdVersion:
		return h.replyU8(CmdVersion)
	case CmdGetVersion:
		return h.replyU8(FirmwareVersion)
	default:
		return h.unknownCommand(msg)
	}
}
