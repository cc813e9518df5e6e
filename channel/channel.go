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

// Package channel implements spec.md §4.4: the four reliability/ordering
// disciplines (reliable-ordered, reliable-unordered, unreliable-ordered,
// unreliable-unordered), monotonic 16-bit reliable sequencing with
// wraparound comparison, fragmentation and reassembly, ack bitfield
// generation and consumption, and exponential-backoff retransmission.
package channel

import (
	"time"

	"github.com/sabouaram/relaynet/config"
	"github.com/sabouaram/relaynet/errcode"
	"github.com/sabouaram/relaynet/wire"
)

// seqGreater reports whether a is strictly ahead of b in the 16-bit
// sequence space, per spec.md §4.4's signed-wraparound comparison.
func seqGreater(a, b uint16) bool { return int16(a-b) > 0 }

func seqGreaterOrEqual(a, b uint16) bool { return int16(a-b) >= 0 }

// commandKindFor maps a channel's reliability discipline to the wire
// command kind used for whole (non-fragmented) messages.
func commandKindFor(t config.ChannelType) wire.Kind {
	switch t {
	case config.ChannelReliableOrdered, config.ChannelReliableUnordered:
		return wire.KindSendReliable
	case config.ChannelUnreliableOrdered:
		return wire.KindSendUnreliable
	default:
		return wire.KindSendUnsequenced
	}
}

func isReliable(t config.ChannelType) bool {
	return t == config.ChannelReliableOrdered || t == config.ChannelReliableUnordered
}

func isOrdered(t config.ChannelType) bool {
	return t == config.ChannelReliableOrdered || t == config.ChannelUnreliableOrdered
}

// pendingSend is one reliable command awaiting acknowledgment.
type pendingSend struct {
	cmd      wire.Command
	sentAt   time.Time
	rto      time.Duration
	retries  uint8
}

// reassemblyState accumulates fragments of one message sharing a base
// sequence (base = fragment's Seq - FragIndex, so the fragments of a
// single message occupy FragCount consecutive sequence numbers).
type reassemblyState struct {
	parts     [][]byte
	have      int
	total     int
	fullLen   uint32
	startedAt time.Time
	channel   uint8
}

// Channel is the per-channel state a Peer owns, one per negotiated
// channel index (§3, §4.4).
type Channel struct {
	ID   uint8
	Type config.ChannelType

	RetransmissionCap    uint8
	RetransmissionRTOCap time.Duration

	// outgoing
	nextSeq uint16
	pending map[uint16]*pendingSend

	// incoming ordering
	nextExpected  uint16
	lastDelivered uint16
	haveDelivered bool
	reorderBuf    map[uint16][]byte

	// duplicate suppression for reliable-unordered: retransmissions may
	// legitimately re-arrive after the original was already delivered.
	deliveredRecent map[uint16]struct{}

	// incoming reassembly, keyed by base sequence
	reassembly map[uint16]*reassemblyState

	// incoming ack accounting: which reliable sequences have been
	// received and not yet acknowledged to the sender
	ackBase  uint16
	ackBits  uint32
	haveAck  bool
}

// New constructs a Channel in its initial (empty) state.
func New(id uint8, typ config.ChannelType, retransmissionCap uint8, rtoCap time.Duration) *Channel {
	return &Channel{
		ID:                   id,
		Type:                 typ,
		RetransmissionCap:    retransmissionCap,
		RetransmissionRTOCap: rtoCap,
		pending:              make(map[uint16]*pendingSend),
		reorderBuf:           make(map[uint16][]byte),
		deliveredRecent:      make(map[uint16]struct{}),
		reassembly:           make(map[uint16]*reassemblyState),
	}
}

// Send splits payload into one or more wire commands ready to be placed
// in an outgoing datagram. maxFragmentPayload is the largest payload a
// single (non-fragment-header) command may carry, derived from the
// peer's current MTU (§4.3).
func (c *Channel) Send(payload []byte, maxFragmentPayload int, initialRTO time.Duration, now time.Time) []wire.Command {
	if len(payload) <= maxFragmentPayload {
		seq := c.nextSeq
		c.nextSeq++
		cmd := wire.Command{Kind: commandKindFor(c.Type), Channel: c.ID, Seq: seq, Payload: payload}
		if isReliable(c.Type) {
			c.pending[seq] = &pendingSend{cmd: cmd, sentAt: now, rto: initialRTO}
		}
		return []wire.Command{cmd}
	}

	fragCount := (len(payload) + maxFragmentPayload - 1) / maxFragmentPayload
	cmds := make([]wire.Command, 0, fragCount)
	for i := 0; i < fragCount; i++ {
		start := i * maxFragmentPayload
		end := start + maxFragmentPayload
		if end > len(payload) {
			end = len(payload)
		}
		seq := c.nextSeq
		c.nextSeq++
		cmd := wire.Command{
			Kind:      wire.KindSendFragment,
			Channel:   c.ID,
			Seq:       seq,
			FragIndex: uint16(i),
			FragCount: uint16(fragCount),
			FullLen:   uint32(len(payload)),
			Payload:   payload[start:end],
		}
		if isReliable(c.Type) {
			c.pending[seq] = &pendingSend{cmd: cmd, sentAt: now, rto: initialRTO}
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// Receive processes one inbound command addressed to this channel,
// returning a fully reassembled, in-order (when the discipline demands
// it) message when one becomes deliverable.
func (c *Channel) Receive(cmd wire.Command, reassemblyTimeout time.Duration, now time.Time) ([][]byte, error) {
	c.purgeStaleReassembly(reassemblyTimeout, now)

	if isReliable(c.Type) {
		c.recordAck(cmd.Seq)
	}

	var payload []byte
	seq, span := cmd.Seq, uint16(1)
	switch cmd.Kind {
	case wire.KindSendReliable, wire.KindSendUnreliable, wire.KindSendUnsequenced:
		payload = cmd.Payload
	case wire.KindSendFragment:
		p, ready, err := c.assembleFragment(cmd, now)
		if err != nil {
			return nil, err
		}
		if !ready {
			return nil, nil
		}
		payload = p
		seq, span = cmd.Seq-cmd.FragIndex, cmd.FragCount
	default:
		return nil, errcode.New(errcode.ProtocolMalformedCommand)
	}

	return c.admit(seq, span, payload), nil
}

// assembleFragment folds one fragment into its reassembly group, keyed by
// the base sequence (cmd.Seq - cmd.FragIndex).
func (c *Channel) assembleFragment(cmd wire.Command, now time.Time) ([]byte, bool, error) {
	base := cmd.Seq - cmd.FragIndex
	st, ok := c.reassembly[base]
	if !ok {
		if cmd.FragCount == 0 || cmd.FragCount > 4096 {
			return nil, false, errcode.New(errcode.ProtocolMalformedCommand)
		}
		st = &reassemblyState{
			parts:     make([][]byte, cmd.FragCount),
			total:     int(cmd.FragCount),
			fullLen:   cmd.FullLen,
			startedAt: now,
			channel:   cmd.Channel,
		}
		c.reassembly[base] = st
	}

	if int(cmd.FragIndex) >= st.total {
		return nil, false, errcode.New(errcode.ProtocolMalformedCommand)
	}
	if st.parts[cmd.FragIndex] == nil {
		st.parts[cmd.FragIndex] = cmd.Payload
		st.have++
	}

	if st.have < st.total {
		return nil, false, nil
	}

	out := make([]byte, 0, st.fullLen)
	for _, p := range st.parts {
		out = append(out, p...)
	}
	delete(c.reassembly, base)
	return out, true, nil
}

func (c *Channel) purgeStaleReassembly(timeout time.Duration, now time.Time) {
	if timeout <= 0 {
		return
	}
	for base, st := range c.reassembly {
		if now.Sub(st.startedAt) > timeout {
			delete(c.reassembly, base)
		}
	}
}

// admit applies the channel's ordering discipline, returning zero or more
// messages now ready for delivery to the application, in delivery order.
// span is the number of consecutive sequences the message occupies
// (FragCount for a reassembled message, 1 otherwise).
func (c *Channel) admit(seq, span uint16, payload []byte) [][]byte {
	if !isOrdered(c.Type) {
		if isReliable(c.Type) {
			if _, seen := c.deliveredRecent[seq]; seen {
				return nil
			}
			c.deliveredRecent[seq] = struct{}{}
			c.pruneDeliveredRecent()
		}
		return [][]byte{payload}
	}

	if c.Type == config.ChannelUnreliableOrdered {
		if c.haveDelivered && !seqGreater(seq, c.lastDelivered) {
			return nil
		}
		c.lastDelivered = seq
		c.haveDelivered = true
		return [][]byte{payload}
	}

	// reliable-ordered: buffer until the longest contiguous prefix can be
	// released, starting from sequence 0 (the sender's first sequence).
	if seqGreater(c.nextExpected, seq) {
		return nil // already delivered
	}

	if payload == nil {
		payload = []byte{}
	}
	c.reorderBuf[seq] = payload
	for i := uint16(1); i < span; i++ {
		c.reorderBuf[seq+i] = nil // later fragment sequences: nothing to deliver
	}

	var out [][]byte
	for {
		p, ok := c.reorderBuf[c.nextExpected]
		if !ok {
			break
		}
		delete(c.reorderBuf, c.nextExpected)
		if p != nil {
			out = append(out, p)
		}
		c.nextExpected++
	}
	return out
}

// pruneDeliveredRecent drops duplicate-suppression entries that have
// fallen far behind the current ack window, bounding deliveredRecent's
// size regardless of how long a reliable-unordered channel stays open.
func (c *Channel) pruneDeliveredRecent() {
	if !c.haveAck || len(c.deliveredRecent) < 64 {
		return
	}
	for seq := range c.deliveredRecent {
		if c.ackBase-seq > 128 {
			delete(c.deliveredRecent, seq)
		}
	}
}

// recordAck folds a newly received reliable sequence into the pending ack
// bitfield (§4.4): a base plus up to 32 prior sequences.
func (c *Channel) recordAck(seq uint16) {
	if !c.haveAck {
		c.ackBase = seq
		c.ackBits = 0
		c.haveAck = true
		return
	}

	if seqGreater(seq, c.ackBase) {
		shift := seq - c.ackBase
		if shift >= 32 {
			c.ackBits = 0
		} else {
			c.ackBits = (c.ackBits << shift) | (1 << (shift - 1))
		}
		c.ackBase = seq
		return
	}

	diff := c.ackBase - seq
	if diff >= 1 && diff <= 32 {
		c.ackBits |= 1 << (diff - 1)
	}
}

// PendingAck returns the ack state to place on an outgoing datagram, and
// whether there is anything to report.
func (c *Channel) PendingAck() (base uint16, bits uint32, ok bool) {
	return c.ackBase, c.ackBits, c.haveAck
}

// ConsumeAck marks every reliable send acknowledged by an incoming ack
// command as delivered, removing it from the retransmission set.
func (c *Channel) ConsumeAck(base uint16, bits uint32) {
	delete(c.pending, base)
	for i := uint(0); i < 32; i++ {
		if bits&(1<<i) == 0 {
			continue
		}
		seq := base - uint16(i+1)
		delete(c.pending, seq)
	}
}

// Retransmit returns commands whose retransmission timer has expired,
// applying exponential backoff capped by RetransmissionRTOCap, and
// reports whether RetransmissionCap was exceeded by any of them.
func (c *Channel) Retransmit(now time.Time) (cmds []wire.Command, ceilingExceeded bool) {
	for seq, p := range c.pending {
		if now.Sub(p.sentAt) < p.rto {
			continue
		}
		p.retries++
		if p.retries > c.RetransmissionCap {
			ceilingExceeded = true
			delete(c.pending, seq)
			continue
		}
		p.sentAt = now
		p.rto *= 2
		if p.rto > c.RetransmissionRTOCap {
			p.rto = c.RetransmissionRTOCap
		}
		cmds = append(cmds, p.cmd)
	}
	return cmds, ceilingExceeded
}

// PendingCount reports how many reliable sends await acknowledgment,
// used by Flush (§4.6) to decide whether there is outstanding work.
func (c *Channel) PendingCount() int { return len(c.pending) }
