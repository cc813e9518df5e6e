/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package wire implements the datagram frame format of spec.md §6: the
// outer header, the per-command inner header, and the fixed command set.
// Encode∘Decode of every command is the identity (spec.md §8).
package wire

import (
	"encoding/binary"

	"github.com/sabouaram/relaynet/errcode"
)

// Magic identifies a relaynet datagram. spec.md §6 lists the header fields
// (magic u32, version u8, flags u16, session id u16, sequence u24, payload
// length u16) which sum to 14 bytes, not the "12 bytes" the prose states;
// this implementation trusts the explicit field list (see DESIGN.md).
const Magic uint32 = 0x524e4554 // "RNET"

const ProtocolVersion uint8 = 1

// HeaderSize is the encoded size of OuterHeader, excluding the AEAD tag
// that follows the payload of an encrypted datagram (handshake datagrams
// are sent in cleartext, without a tag).
const HeaderSize = 4 + 1 + 2 + 2 + 3 + 2

// TagSize is the AEAD authentication tag size (chacha20poly1305.Overhead).
const TagSize = 16

// Flag bits, per spec.md §6.
type Flag uint16

const (
	FlagCompressed Flag = 1 << 0
	FlagEncrypted  Flag = 1 << 1
	FlagFragmented Flag = 1 << 2
	FlagCarriesAck Flag = 1 << 3
	FlagSentTime   Flag = 1 << 4
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// OuterHeader is spec.md §6's 12(14)-byte outer header.
type OuterHeader struct {
	Magic     uint32
	Version   uint8
	Flags     Flag
	SessionID uint16
	Sequence  uint32 // 24-bit, values above 0xFFFFFF are invalid
	PayloadLen uint16
}

// Encode serializes the header into dst[:HeaderSize]. dst must be at least
// HeaderSize bytes.
func (h OuterHeader) Encode(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], h.Magic)
	dst[4] = h.Version
	binary.BigEndian.PutUint16(dst[5:7], uint16(h.Flags))
	binary.BigEndian.PutUint16(dst[7:9], h.SessionID)
	dst[9] = byte(h.Sequence >> 16)
	dst[10] = byte(h.Sequence >> 8)
	dst[11] = byte(h.Sequence)
	binary.BigEndian.PutUint16(dst[12:14], h.PayloadLen)
}

// Decode parses a header from src. It never inspects the AEAD tag or
// payload; integrity is verified later by the cryptographer (§4.2(b)).
func Decode(src []byte) (OuterHeader, error) {
	if len(src) < HeaderSize {
		return OuterHeader{}, errcode.New(errcode.ProtocolMalformedCommand)
	}

	var h OuterHeader
	h.Magic = binary.BigEndian.Uint32(src[0:4])
	h.Version = src[4]
	h.Flags = Flag(binary.BigEndian.Uint16(src[5:7]))
	h.SessionID = binary.BigEndian.Uint16(src[7:9])
	h.Sequence = uint32(src[9])<<16 | uint32(src[10])<<8 | uint32(src[11])
	h.PayloadLen = binary.BigEndian.Uint16(src[12:14])

	if h.Magic != Magic {
		return h, errcode.New(errcode.ProtocolMagicMismatch)
	}
	if h.Version != ProtocolVersion {
		return h, errcode.New(errcode.ProtocolVersionMismatch)
	}

	return h, nil
}
