// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

// IsHex reports whether c is an uppercase hex digit. Lowercase is not part of
// the request format.
func IsHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}

func nibble(c byte) byte {
	if c <= '9' {
		return c - '0'
	}
	return c - 'A' + 10
}

// HexToU8 decodes two ASCII-hex characters, high nibble first.
// The caller validates the characters with IsHex.
func HexToU8(p []byte) uint8 {
	return nibble(p[0])<<4 | nibble(p[1])
}

// HexToU16 decodes four ASCII-hex characters, high byte first.
func HexToU16(p []byte) uint16 {
	return uint16(HexToU8(p))<<8 | uint16(HexToU8(p[2:]))
}

const upperHex = "0123456789ABCDEF"

// AppendHexU8 appends the uppercase two-character encoding of v.
func AppendHexU8(dst []byte, v uint8) []byte {
	return append(dst, upperHex[v>>4], upperHex[v&0x0F])
}

// AppendHexU16 appends the uppercase four-character encoding of v, high byte first.
func AppendHexU16(dst []byte, v uint16) []byte {
	return AppendHexU8(AppendHexU8(dst, uint8(v>>8)), uint8(v))
}
