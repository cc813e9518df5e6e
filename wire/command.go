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

package wire

import (
	"encoding/binary"

	"github.com/sabouaram/relaynet/errcode"
)

// Kind is spec.md §6's command kind byte.
type Kind uint8

const (
	KindNone Kind = iota
	KindAck
	KindConnect
	KindVerifyConnect
	KindDisconnect
	KindPing
	KindSendReliable
	KindSendUnreliable
	KindSendFragment
	KindSendUnsequenced
	KindBandwidthLimit
	KindThrottleConfigure
	KindMTUProbe
	KindMTUResponse
)

// innerHeaderSize is the shared prefix of every command: kind, channel id,
// reliable sequence.
const innerHeaderSize = 1 + 1 + 2

// Command is the decoded form of one protocol PDU. Only the fields
// relevant to Kind are populated; callers switch on Kind.
type Command struct {
	Kind    Kind
	Channel uint8
	Seq     uint16

	// send-reliable / send-unreliable / send-unsequenced
	Payload []byte

	// send-fragment
	FragIndex uint16
	FragCount uint16
	FullLen   uint32

	// ack
	AckBase   uint16
	AckBits   uint32

	// connect
	ConnID        uint64
	ChannelTypes  []uint8
	Capabilities  uint32
	ConnToken     []byte
	KeyShare      [32]byte
	CookieEcho    []byte

	// AuthToken carries the opaque authentication token of spec.md §4.5's
	// connect-ack message. It is only meaningful on a KindConnect command
	// sent encrypted, after the session key has been established: the
	// cleartext first connect-request never populates it.
	AuthToken []byte

	// verify-connect
	AssignedPeerID uint16
	Cookie         []byte

	// disconnect
	Reason uint8

	// ping
	Nonce uint32

	// bandwidth-limit
	IncomingLimit uint32
	OutgoingLimit uint32

	// throttle-configure
	Rate  uint32
	Burst uint32

	// mtu-probe / mtu-response
	ProbeSize uint16
}

// EncodedSize returns the exact length Encode will produce.
func (c Command) EncodedSize() int {
	switch c.Kind {
	case KindNone:
		return innerHeaderSize
	case KindAck:
		return innerHeaderSize + 2 + 4
	case KindConnect:
		return innerHeaderSize + 8 + 1 + len(c.ChannelTypes) + 4 + 2 + len(c.ConnToken) + 32 + 1 + len(c.CookieEcho) + 2 + len(c.AuthToken)
	case KindVerifyConnect:
		return innerHeaderSize + 2 + 1 + len(c.Cookie) + 32
	case KindDisconnect:
		return innerHeaderSize + 1
	case KindPing:
		return innerHeaderSize + 4
	case KindSendReliable, KindSendUnreliable, KindSendUnsequenced:
		return innerHeaderSize + 2 + len(c.Payload)
	case KindSendFragment:
		return innerHeaderSize + 2 + 2 + 4 + 2 + len(c.Payload)
	case KindBandwidthLimit:
		return innerHeaderSize + 4 + 4
	case KindThrottleConfigure:
		return innerHeaderSize + 4 + 4
	case KindMTUProbe, KindMTUResponse:
		return innerHeaderSize + 2
	default:
		return innerHeaderSize
	}
}

// Encode appends the command's wire encoding to dst and returns the result.
func (c Command) Encode(dst []byte) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, c.EncodedSize())...)
	buf := dst[start:]

	buf[0] = byte(c.Kind)
	buf[1] = c.Channel
	binary.BigEndian.PutUint16(buf[2:4], c.Seq)
	body := buf[innerHeaderSize:]

	switch c.Kind {
	case KindAck:
		binary.BigEndian.PutUint16(body[0:2], c.AckBase)
		binary.BigEndian.PutUint32(body[2:6], c.AckBits)

	case KindConnect:
		binary.BigEndian.PutUint64(body[0:8], c.ConnID)
		body[8] = uint8(len(c.ChannelTypes))
		off := 9
		copy(body[off:], c.ChannelTypes)
		off += len(c.ChannelTypes)
		binary.BigEndian.PutUint32(body[off:off+4], c.Capabilities)
		off += 4
		binary.BigEndian.PutUint16(body[off:off+2], uint16(len(c.ConnToken)))
		off += 2
		copy(body[off:], c.ConnToken)
		off += len(c.ConnToken)
		copy(body[off:off+32], c.KeyShare[:])
		off += 32
		body[off] = uint8(len(c.CookieEcho))
		off++
		copy(body[off:], c.CookieEcho)
		off += len(c.CookieEcho)
		binary.BigEndian.PutUint16(body[off:off+2], uint16(len(c.AuthToken)))
		off += 2
		copy(body[off:], c.AuthToken)

	case KindVerifyConnect:
		binary.BigEndian.PutUint16(body[0:2], c.AssignedPeerID)
		body[2] = uint8(len(c.Cookie))
		off := 3
		copy(body[off:], c.Cookie)
		off += len(c.Cookie)
		copy(body[off:off+32], c.KeyShare[:])

	case KindDisconnect:
		body[0] = c.Reason

	case KindPing:
		binary.BigEndian.PutUint32(body[0:4], c.Nonce)

	case KindSendReliable, KindSendUnreliable, KindSendUnsequenced:
		binary.BigEndian.PutUint16(body[0:2], uint16(len(c.Payload)))
		copy(body[2:], c.Payload)

	case KindSendFragment:
		binary.BigEndian.PutUint16(body[0:2], c.FragIndex)
		binary.BigEndian.PutUint16(body[2:4], c.FragCount)
		binary.BigEndian.PutUint32(body[4:8], c.FullLen)
		binary.BigEndian.PutUint16(body[8:10], uint16(len(c.Payload)))
		copy(body[10:], c.Payload)

	case KindBandwidthLimit:
		binary.BigEndian.PutUint32(body[0:4], c.IncomingLimit)
		binary.BigEndian.PutUint32(body[4:8], c.OutgoingLimit)

	case KindThrottleConfigure:
		binary.BigEndian.PutUint32(body[0:4], c.Rate)
		binary.BigEndian.PutUint32(body[4:8], c.Burst)

	case KindMTUProbe, KindMTUResponse:
		binary.BigEndian.PutUint16(body[0:2], c.ProbeSize)
	}

	return dst
}

// DecodeCommand parses one command from the front of src and returns the
// command plus the number of bytes consumed.
func DecodeCommand(src []byte) (Command, int, error) {
	if len(src) < innerHeaderSize {
		return Command{}, 0, errcode.New(errcode.ProtocolMalformedCommand)
	}

	c := Command{
		Kind:    Kind(src[0]),
		Channel: src[1],
		Seq:     binary.BigEndian.Uint16(src[2:4]),
	}
	body := src[innerHeaderSize:]

	need := func(n int) error {
		if len(body) < n {
			return errcode.New(errcode.ProtocolMalformedCommand)
		}
		return nil
	}

	switch c.Kind {
	case KindNone:
		return c, innerHeaderSize, nil

	case KindAck:
		if err := need(6); err != nil {
			return c, 0, err
		}
		c.AckBase = binary.BigEndian.Uint16(body[0:2])
		c.AckBits = binary.BigEndian.Uint32(body[2:6])
		return c, innerHeaderSize + 6, nil

	case KindConnect:
		if err := need(9); err != nil {
			return c, 0, err
		}
		c.ConnID = binary.BigEndian.Uint64(body[0:8])
		nch := int(body[8])
		off := 9
		if err := need(off + nch); err != nil {
			return c, 0, err
		}
		c.ChannelTypes = append([]uint8(nil), body[off:off+nch]...)
		off += nch
		if err := need(off + 4); err != nil {
			return c, 0, err
		}
		c.Capabilities = binary.BigEndian.Uint32(body[off : off+4])
		off += 4
		if err := need(off + 2); err != nil {
			return c, 0, err
		}
		tokLen := int(binary.BigEndian.Uint16(body[off : off+2]))
		off += 2
		if err := need(off + tokLen); err != nil {
			return c, 0, err
		}
		c.ConnToken = append([]byte(nil), body[off:off+tokLen]...)
		off += tokLen
		if err := need(off + 32); err != nil {
			return c, 0, err
		}
		copy(c.KeyShare[:], body[off:off+32])
		off += 32
		if err := need(off + 1); err != nil {
			return c, 0, err
		}
		cookieLen := int(body[off])
		off++
		if err := need(off + cookieLen); err != nil {
			return c, 0, err
		}
		c.CookieEcho = append([]byte(nil), body[off:off+cookieLen]...)
		off += cookieLen
		if err := need(off + 2); err != nil {
			return c, 0, err
		}
		authLen := int(binary.BigEndian.Uint16(body[off : off+2]))
		off += 2
		if err := need(off + authLen); err != nil {
			return c, 0, err
		}
		c.AuthToken = append([]byte(nil), body[off:off+authLen]...)
		off += authLen
		return c, innerHeaderSize + off, nil

	case KindVerifyConnect:
		if err := need(3); err != nil {
			return c, 0, err
		}
		c.AssignedPeerID = binary.BigEndian.Uint16(body[0:2])
		cookieLen := int(body[2])
		off := 3
		if err := need(off + cookieLen + 32); err != nil {
			return c, 0, err
		}
		c.Cookie = append([]byte(nil), body[off:off+cookieLen]...)
		off += cookieLen
		copy(c.KeyShare[:], body[off:off+32])
		off += 32
		return c, innerHeaderSize + off, nil

	case KindDisconnect:
		if err := need(1); err != nil {
			return c, 0, err
		}
		c.Reason = body[0]
		return c, innerHeaderSize + 1, nil

	case KindPing:
		if err := need(4); err != nil {
			return c, 0, err
		}
		c.Nonce = binary.BigEndian.Uint32(body[0:4])
		return c, innerHeaderSize + 4, nil

	case KindSendReliable, KindSendUnreliable, KindSendUnsequenced:
		if err := need(2); err != nil {
			return c, 0, err
		}
		plen := int(binary.BigEndian.Uint16(body[0:2]))
		if err := need(2 + plen); err != nil {
			return c, 0, err
		}
		c.Payload = append([]byte{}, body[2:2+plen]...)
		return c, innerHeaderSize + 2 + plen, nil

	case KindSendFragment:
		if err := need(10); err != nil {
			return c, 0, err
		}
		c.FragIndex = binary.BigEndian.Uint16(body[0:2])
		c.FragCount = binary.BigEndian.Uint16(body[2:4])
		c.FullLen = binary.BigEndian.Uint32(body[4:8])
		plen := int(binary.BigEndian.Uint16(body[8:10]))
		if err := need(10 + plen); err != nil {
			return c, 0, err
		}
		c.Payload = append([]byte(nil), body[10:10+plen]...)
		return c, innerHeaderSize + 10 + plen, nil

	case KindBandwidthLimit:
		if err := need(8); err != nil {
			return c, 0, err
		}
		c.IncomingLimit = binary.BigEndian.Uint32(body[0:4])
		c.OutgoingLimit = binary.BigEndian.Uint32(body[4:8])
		return c, innerHeaderSize + 8, nil

	case KindThrottleConfigure:
		if err := need(8); err != nil {
			return c, 0, err
		}
		c.Rate = binary.BigEndian.Uint32(body[0:4])
		c.Burst = binary.BigEndian.Uint32(body[4:8])
		return c, innerHeaderSize + 8, nil

	case KindMTUProbe, KindMTUResponse:
		if err := need(2); err != nil {
			return c, 0, err
		}
		c.ProbeSize = binary.BigEndian.Uint16(body[0:2])
		return c, innerHeaderSize + 2, nil

	default:
		return c, 0, errcode.New(errcode.ProtocolMalformedCommand)
	}
}

// DecodeCommands decodes every command packed back-to-back in payload,
// in the order they appear (§4.2(e)).
func DecodeCommands(payload []byte) ([]Command, error) {
	var out []Command
	for len(payload) > 0 {
		c, n, err := DecodeCommand(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		payload = payload[n:]
	}
	return out, nil
}
