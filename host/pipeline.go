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

// Pipeline is spec.md §4.2's send/receive path: wire encode, optional
// compression, then (once a session exists) AEAD sealing, in that order
// on send and the mirror image on receive.
package host

import (
	"encoding/binary"

	"github.com/sabouaram/relaynet/compress"
	"github.com/sabouaram/relaynet/errcode"
	"github.com/sabouaram/relaynet/peer"
	"github.com/sabouaram/relaynet/wire"
)

// sendHandshake transmits one cleartext handshake command (KindConnect or
// KindVerifyConnect), before any session key exists (§4.5).
func (h *Host) sendHandshake(p *peer.Peer, cmd wire.Command) error {
	var payload []byte
	payload = cmd.Encode(payload)

	hdr := wire.OuterHeader{
		Magic:      wire.Magic,
		Version:    wire.ProtocolVersion,
		SessionID:  p.LocalID,
		Sequence:   p.NextOuterSequence(),
		PayloadLen: uint16(len(payload)),
	}

	buf := make([]byte, wire.HeaderSize, wire.HeaderSize+len(payload))
	hdr.Encode(buf)
	buf = append(buf, payload...)

	if err := h.net.Send(p.Addr, buf); err != nil {
		return err
	}
	h.metrics.sent(len(buf))
	return nil
}

// sendEncrypted sends cmds (plus any channel's pending ack) to p under its
// session cipher, splitting them across as many datagrams as it takes to
// keep every one at or under the peer's current MTU estimate (§4.2(a)): a
// fragmented Send's individual KindSendFragment commands were already sized
// against that same MTU by Channel.Send, so batching must not silently
// re-coalesce them back into one oversized datagram.
func (h *Host) sendEncrypted(p *peer.Peer, cmds []wire.Command) error {
	if p.Session == nil {
		return errcode.New(errcode.ApplicationInvalidArgument)
	}

	all := make([]wire.Command, 0, len(cmds)+len(p.Channels))
	all = append(all, cmds...)

	for _, ch := range p.Channels {
		base, bits, ok := ch.PendingAck()
		if !ok {
			continue
		}
		all = append(all, wire.Command{Kind: wire.KindAck, Channel: ch.ID, AckBase: base, AckBits: bits})
	}

	limit := int(p.MTU.Current()) - wire.HeaderSize - p.Session.Overhead()
	if limit < 64 {
		limit = 64
	}

	for _, batch := range batchCommands(all, limit) {
		if err := h.sendCommandBatch(p, batch); err != nil {
			return err
		}
	}
	return nil
}

// batchCommands packs cmds into the fewest ordered runs whose summed
// encoded size stays within limit, preserving relative order within and
// across runs.
func batchCommands(cmds []wire.Command, limit int) [][]wire.Command {
	if len(cmds) == 0 {
		return nil
	}

	var batches [][]wire.Command
	var cur []wire.Command
	curSize := 0
	for _, c := range cmds {
		sz := c.EncodedSize()
		if len(cur) > 0 && curSize+sz > limit {
			batches = append(batches, cur)
			cur = nil
			curSize = 0
		}
		cur = append(cur, c)
		curSize += sz
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// sendCommandBatch builds and sends one datagram carrying batch under the
// peer's session cipher, compressing first when doing so shrinks the
// payload (§4.2(c)).
func (h *Host) sendCommandBatch(p *peer.Peer, batch []wire.Command) error {
	var plain []byte
	for _, c := range batch {
		plain = c.Encode(plain)
	}

	flags := wire.Flag(0)
	for _, c := range batch {
		switch c.Kind {
		case wire.KindAck:
			flags |= wire.FlagCarriesAck
		case wire.KindSendFragment:
			flags |= wire.FlagFragmented
		}
	}

	body := plain
	if compressed, ok, err := compress.Compress(plain); err == nil && ok && 4+len(compressed) < len(plain) {
		flags |= wire.FlagCompressed
		prefixed := make([]byte, 4+len(compressed))
		binary.BigEndian.PutUint32(prefixed[0:4], uint32(len(plain)))
		copy(prefixed[4:], compressed)
		body = prefixed
	}
	flags |= wire.FlagEncrypted

	seq := p.NextOuterSequence()
	hdr := wire.OuterHeader{
		Magic:      wire.Magic,
		Version:    wire.ProtocolVersion,
		Flags:      flags,
		SessionID:  p.LocalID,
		Sequence:   seq,
		PayloadLen: uint16(len(body) + p.Session.Overhead()),
	}

	headerBuf := make([]byte, wire.HeaderSize)
	hdr.Encode(headerBuf)

	sealed := p.Session.Seal(nil, headerBuf, seq, body)

	datagram := append(headerBuf, sealed...)
	if err := h.net.Send(p.Addr, datagram); err != nil {
		return err
	}
	h.metrics.sent(len(datagram))
	return nil
}

// sendMTUProbe sends a KindMTUProbe datagram padded, with trailing
// zero-valued KindNone filler commands, so its total size on the wire is
// probeSize, or up to 3 bytes less since the filler comes in 4-byte
// commands (§4.5): skipping sendCommandBatch's opportunistic compression
// pass matters here, since a run of zero bytes compresses away to almost
// nothing and would defeat the point of padding the datagram out to the
// size MTU discovery is actually testing. A path that can't carry a
// datagram this large drops or truncates it, so the probe simply never
// gets a KindMTUResponse back, letting the search narrow downward.
func (h *Host) sendMTUProbe(p *peer.Peer, probeSize uint16) error {
	if p.Session == nil {
		return errcode.New(errcode.ApplicationInvalidArgument)
	}

	cmd := wire.Command{Kind: wire.KindMTUProbe, ProbeSize: probeSize}
	plain := cmd.Encode(nil)

	overhead := wire.HeaderSize + p.Session.Overhead()
	if want := int(probeSize) - overhead - len(plain); want > 0 {
		pad := want - want%4 // stay a multiple of innerHeaderSize so it decodes as KindNone filler
		plain = append(plain, make([]byte, pad)...)
	}

	seq := p.NextOuterSequence()
	hdr := wire.OuterHeader{
		Magic:      wire.Magic,
		Version:    wire.ProtocolVersion,
		Flags:      wire.FlagEncrypted,
		SessionID:  p.LocalID,
		Sequence:   seq,
		PayloadLen: uint16(len(plain) + p.Session.Overhead()),
	}

	headerBuf := make([]byte, wire.HeaderSize)
	hdr.Encode(headerBuf)

	sealed := p.Session.Seal(nil, headerBuf, seq, plain)

	datagram := append(headerBuf, sealed...)
	if err := h.net.Send(p.Addr, datagram); err != nil {
		return err
	}
	h.metrics.sent(len(datagram))
	return nil
}

// decodeDatagram parses the outer header and, when the host holds a
// session for the sender, decrypts and decompresses the payload back into
// its command list.
func (h *Host) decodeDatagram(raw []byte, p *peer.Peer) (wire.OuterHeader, []wire.Command, error) {
	hdr, err := wire.Decode(raw)
	if err != nil {
		return hdr, nil, err
	}
	body := raw[wire.HeaderSize:]

	if !hdr.Flags.Has(wire.FlagEncrypted) {
		cmds, err := wire.DecodeCommands(body)
		return hdr, cmds, err
	}

	if p == nil || p.Session == nil {
		return hdr, nil, errcode.New(errcode.ProtocolMACFailure)
	}

	headerBuf := make([]byte, wire.HeaderSize)
	hdr.Encode(headerBuf)

	plain, err := p.Session.Open(nil, headerBuf, hdr.Sequence, body)
	if err != nil {
		return hdr, nil, err
	}

	if hdr.Flags.Has(wire.FlagCompressed) {
		if len(plain) < 4 {
			return hdr, nil, errcode.New(errcode.ProtocolMalformedCommand)
		}
		originalLen := binary.BigEndian.Uint32(plain[0:4])
		plain, err = compress.Decompress(plain[4:], int(originalLen), h.cfg.MaxDecompressedSize)
		if err != nil {
			return hdr, nil, err
		}
	}

	cmds, err := wire.DecodeCommands(plain)
	return hdr, cmds, err
}
