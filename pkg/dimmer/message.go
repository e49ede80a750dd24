// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

// Message is a decoded request. It lives for one dispatch.
type Message struct {
	Address uint8
	Channel Channel
	Command uint8
	// Payload holds the undecoded hex characters after address and command.
	Payload []byte
}

// IsRead reports whether the command is a read command.
func (m *Message) IsRead() bool {
	return m.Command&CmdReadFlag != 0
}

// U8 decodes the 8-bit payload field starting at hex character offset.
func (m *Message) U8(offset int) uint8 {
	return HexToU8(m.Payload[offset:])
}

// U16 decodes the 16-bit payload field starting at hex character offset.
func (m *Message) U16(offset int) uint16 {
	return HexToU16(m.Payload[offset:])
}

// ChannelForAddress maps a wire address to a channel.
func ChannelForAddress(address uint8) (Channel, bool) {
	switch address {
	case AddressChannel0:
		return Channel0, true
	case AddressChannel1:
		return Channel1, true
	}
	return 0, false
}

// ParseMessage validates a frame body and decodes address and command.
//
// Checks run in order and fail fast: length (at least 4, even), hex digits,
// address. A non-hex byte rejects the whole frame.
func ParseMessage(body []byte) (*Message, error) {
	if len(body) < 4 {
		return nil, protocolErrorf(KindMalformedBody, "message too small: %d bytes", len(body))
	}
	if len(body)%2 != 0 {
		return nil, protocolErrorf(KindMalformedBody, "message not a multiple of 2 bytes: %d bytes", len(body))
	}
	for i, c := range body {
		if !IsHex(c) {
			return nil, protocolErrorf(KindNonHexByte, "non-hex byte 0x%02X at offset %d", c, i)
		}
	}

	address := HexToU8(body[0:2])
	ch, ok := ChannelForAddress(address)
	if !ok {
		return nil, protocolErrorf(KindUnknownAddress, "incorrect address 0x%02x, ignoring", address)
	}

	return &Message{
		Address: address,
		Channel: ch,
		Command: HexToU8(body[2:4]),
		Payload: body[4:],
	}, nil
}
