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

package host

import (
	"time"

	"github.com/sabouaram/relaynet/address"
	"github.com/sabouaram/relaynet/config"
	"github.com/sabouaram/relaynet/logging"
	"github.com/sabouaram/relaynet/network"
	"github.com/sabouaram/relaynet/peer"
	"github.com/sabouaram/relaynet/wire"
)

// Service runs exactly one pass of spec.md §4.6's ordering guarantee: a
// single "now" is captured, every datagram currently available is
// drained and processed, every peer's timers (retransmission, ping,
// liveness) are advanced against that same "now", and finally at most one
// queued Event is returned. A zero timeout makes the initial drain
// non-blocking; a positive timeout lets Service block waiting for the
// first datagram to arrive.
func (h *Host) Service(timeout time.Duration) (Event, bool, error) {
	now := time.Now()

	if err := h.drainIncoming(now, timeout); err != nil {
		return Event{}, false, err
	}
	h.advanceTimers(now)
	h.emitRetransmissions(now)

	if len(h.eventQueue) == 0 {
		return Event{}, false, nil
	}
	ev := h.eventQueue[0]
	h.eventQueue = h.eventQueue[1:]
	return ev, true, nil
}

func (h *Host) drainIncoming(now time.Time, timeout time.Duration) error {
	first := true
	for {
		deadline := now
		if first && timeout > 0 {
			deadline = now.Add(timeout)
		}
		first = false

		dgram, err := h.net.Receive(deadline)
		if err != nil {
			return nil // no more datagrams available right now
		}
		h.metrics.received(len(dgram.Data))
		h.handleDatagram(dgram, now)
	}
}

func (h *Host) handleDatagram(dgram network.Datagram, now time.Time) {
	handle, known := h.byAddr[dgram.From]
	var p *peer.Peer
	if known {
		var err error
		p, err = h.peers.Get(handle)
		if err != nil {
			known = false
		}
	}

	hdr, cmds, err := h.decodeDatagram(dgram.Data, p)
	if err != nil {
		h.logger.Log(logging.WarnLevel, "dropping malformed datagram", logging.Fields{"from": dgram.From.String(), "err": err.Error()})
		return
	}

	if !known {
		h.handleNewConnection(dgram.From, cmds)
		return
	}

	p.Touch(now)

	if hdr.Flags.Has(wire.FlagEncrypted) && p.State == peer.StateAcknowledgingConnect {
		p.State = peer.StateConnected
		h.metrics.peerCountDelta(1)
		h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerConnect, Peer: handle})
	}

	for _, cmd := range cmds {
		h.handleCommand(handle, p, hdr, cmd, now)
	}
}

// handleNewConnection runs the stateless first leg of §4.5's handshake for
// an address the host has no peer for yet. A cookie-validated (or
// cookie-not-required) request allocates a gating peer in
// connection_pending and surfaces EventPeerCheckConnectionToken; the
// embedder's AcceptConnectionToken/RejectConnectionToken call (host/gating.go)
// drives it from there. No session key is derived here.
func (h *Host) handleNewConnection(from address.Address, cmds []wire.Command) {
	for _, cmd := range cmds {
		if cmd.Kind != wire.KindConnect {
			continue
		}

		clientAddrBytes := addrBytes(from)
		reply, assigned := peer.HandleConnectRequest(cmd, clientAddrBytes, h.cookieSecret, h.cfg.RequireCookie)
		if !assigned {
			_ = h.net.Send(from, encodeCleartext(reply))
			return
		}

		mismatch := len(cmd.ChannelTypes) != len(h.cfg.Channels)
		channelTypes := make([]config.ChannelType, len(cmd.ChannelTypes))
		for i, t := range cmd.ChannelTypes {
			channelTypes[i] = config.ChannelType(t)
			if !mismatch && channelTypes[i] != h.cfg.Channels[i] {
				mismatch = true
			}
		}
		if mismatch {
			// the channel-type vector must match this host's exactly (§4.5)
			_ = h.net.Send(from, encodeCleartext(wire.Command{Kind: wire.KindDisconnect, Reason: denyReasonGating}))
			return
		}

		p := peer.New(from, channelTypes, h.cfg)
		handle, err := h.peers.Alloc(p)
		if err != nil {
			h.logger.Log(logging.WarnLevel, "peer table full, refusing connect", logging.Fields{"from": from.String()})
			return
		}

		peer.RecordConnectRequest(p, cmd)
		p.State = peer.StateConnectionPending
		h.byAddr[from] = handle
		h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerCheckConnectionToken, Peer: handle})
		return
	}
}

func (h *Host) handleCommand(handle Handle, p *peer.Peer, hdr wire.OuterHeader, cmd wire.Command, now time.Time) {
	switch cmd.Kind {
	case wire.KindVerifyConnect:
		h.handleVerifyConnect(handle, p, cmd)

	case wire.KindAck:
		if int(cmd.Channel) < len(p.Channels) {
			p.Channels[cmd.Channel].ConsumeAck(cmd.AckBase, cmd.AckBits)
			p.Throttle.OnAck(1500)
		}

	case wire.KindPing:
		// liveness already touched by handleDatagram; nothing further.

	case wire.KindConnect:
		// the connect-ack (§4.5's third handshake message): the client's
		// first encrypted datagram, reusing KindConnect to carry the
		// authentication token the embedder gates on next.
		if p.State == peer.StateAuthenticationPending {
			p.AuthToken = append([]byte(nil), cmd.AuthToken...)
			h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerCheckAuthenticationToken, Peer: handle})
		}

	case wire.KindDisconnect:
		if p.State == peer.StateConnected {
			p.State = peer.StateDisconnected
			delete(h.byAddr, p.Addr)
			h.metrics.peerCountDelta(-1)
			h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerDisconnect, Peer: handle, Reason: cmd.Reason})
			return
		}
		// a pre-connect cleartext disconnect from the remote side is a
		// denial: one of its three gating decisions refused this peer.
		delete(h.byAddr, p.Addr)
		_ = h.peers.Free(handle)
		h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerDenial, Peer: handle, Reason: cmd.Reason})

	case wire.KindMTUProbe:
		resp := wire.Command{Kind: wire.KindMTUResponse, ProbeSize: cmd.ProbeSize}
		_ = h.sendEncrypted(p, []wire.Command{resp})

	case wire.KindMTUResponse:
		if cmd.ProbeSize == p.MTU.Current() {
			p.MTU.OnSuccess()
		} else {
			p.MTU.OnFailure()
		}
		h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerMTU, Peer: handle})

	case wire.KindBandwidthLimit, wire.KindThrottleConfigure:
		// accepted for protocol completeness; this implementation does not
		// yet act on peer-advertised bandwidth hints.

	case wire.KindSendReliable, wire.KindSendUnreliable, wire.KindSendUnsequenced, wire.KindSendFragment:
		if int(cmd.Channel) >= len(p.Channels) {
			return
		}
		msgs, err := p.Channels[cmd.Channel].Receive(cmd, h.reassemblyTimeout(), now)
		if err != nil {
			h.logger.Log(logging.WarnLevel, "channel receive error", logging.Fields{"err": err.Error()})
			return
		}
		for _, m := range msgs {
			h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerReceive, Peer: handle, Channel: cmd.Channel, Data: m})
		}
	}
}

func (h *Host) handleVerifyConnect(handle Handle, p *peer.Peer, cmd wire.Command) {
	if cmd.AssignedPeerID == 0 {
		// stateless cookie challenge: retry the connect request with the
		// cookie echoed back.
		types := make([]uint8, len(p.Channels))
		for i, ch := range p.Channels {
			types[i] = uint8(ch.Type)
		}
		retry, err := peer.BuildConnectRequest(p, p.ConnID, types, 0, p.ConnToken, cmd.Cookie)
		if err != nil {
			return
		}
		_ = h.net.Send(p.Addr, encodeCleartext(retry))
		return
	}

	if err := peer.CompleteClientHandshake(p, cmd, h.responderID); err != nil {
		h.metrics.handshakeFailure()
		return
	}
	// the connect-ack: this peer's first encrypted datagram, carrying the
	// authentication token the server-side embedder inspects at its
	// second gate. The client stays in authentication_pending-equivalent
	// limbo (acknowledging_connect) until the server's own confirmation
	// arrives, promoting it to Connected (handleDatagram).
	p.State = peer.StateAcknowledgingConnect
	_ = h.sendEncrypted(p, []wire.Command{peer.BuildConnectAck(p, p.AuthToken)})
}

func (h *Host) advanceTimers(now time.Time) {
	h.peers.Each(func(handle Handle, p *peer.Peer) {
		if p.State == peer.StateConnected && p.Session != nil {
			if !p.IsLive(now, h.cfg.PeerTimeout) {
				p.State = peer.StateZombie
				delete(h.byAddr, p.Addr)
				h.metrics.peerCountDelta(-1)
				h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerDisconnect, Peer: handle})
				return
			}
			if now.Sub(p.LastPing) >= h.cfg.PingInterval {
				p.LastPing = now
				_ = h.sendEncrypted(p, []wire.Command{{Kind: wire.KindPing, Nonce: p.PingNonce}})
				p.PingNonce++
			}
			if !p.MTU.Settled() {
				_ = h.sendMTUProbe(p, p.MTU.Current())
			}
		}
	})
}

func (h *Host) emitRetransmissions(now time.Time) {
	h.peers.Each(func(handle Handle, p *peer.Peer) {
		if p.State != peer.StateConnected {
			return
		}
		for _, ch := range p.Channels {
			cmds, exceeded := ch.Retransmit(now)
			if exceeded {
				p.State = peer.StateZombie
				delete(h.byAddr, p.Addr)
				h.metrics.peerCountDelta(-1)
				h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerDisconnect, Peer: handle})
				return
			}
			if len(cmds) > 0 {
				h.metrics.retransmission()
				p.Throttle.OnLoss()
				_ = h.sendEncrypted(p, cmds)
			}
		}
	})
}

func (h *Host) reassemblyTimeout() time.Duration {
	return h.cfg.PeerTimeout
}

func encodeCleartext(cmd wire.Command) []byte {
	var payload []byte
	payload = cmd.Encode(payload)
	hdr := wire.OuterHeader{Magic: wire.Magic, Version: wire.ProtocolVersion, PayloadLen: uint16(len(payload))}
	buf := make([]byte, wire.HeaderSize, wire.HeaderSize+len(payload))
	hdr.Encode(buf)
	return append(buf, payload...)
}

func addrBytes(a address.Address) []byte {
	b := make([]byte, 0, 18)
	b = append(b, byte(a.Family))
	b = append(b, a.Host[:]...)
	b = append(b, byte(a.Port>>8), byte(a.Port))
	return b
}

