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

package peer

import (
	"time"

	"github.com/sabouaram/relaynet/address"
	"github.com/sabouaram/relaynet/channel"
	"github.com/sabouaram/relaynet/config"
	"github.com/sabouaram/relaynet/crypto"
)

// Peer is one remote endpoint's full connection state: its handshake
// progress, its channels, and the RTT/throttle/MTU estimators the host
// consults every service() pass (§4.5, §4.6).
type Peer struct {
	Addr  address.Address
	State State

	// assigned once the connect/verify-connect exchange completes
	LocalID  uint16
	RemoteID uint16

	Channels []*channel.Channel

	Session *crypto.Session
	outSeq  uint32 // outer header sequence, this peer's send direction

	RTT      RTTEstimator
	Throttle *Throttle
	MTU      *MTUProbe

	RefCount int32 // spec.md §9's optional IncRef/DecRef accounting

	LastReceived time.Time
	LastSent     time.Time
	LastPing     time.Time
	PingNonce    uint32
	PingsUnacked uint8

	// handshake scratch state
	ConnID         uint64
	EphemeralPriv  [32]byte
	EphemeralPub   [32]byte
	RemoteKeyShare [32]byte
	Cookie         []byte

	// gating scratch state (§4.5's connection_pending/authentication_pending/
	// approval_pending chain): the tokens the embedder inspects via the
	// EventPeerCheckConnectionToken/EventPeerCheckAuthenticationToken
	// events before calling the matching Accept/Reject host method.
	ConnToken []byte
	AuthToken []byte
}

// New constructs a Peer in StateDisconnected; callers set State
// explicitly depending on which side initiates it.
func New(addr address.Address, channels []config.ChannelType, cfg *config.HostConfig) *Peer {
	chs := make([]*channel.Channel, len(channels))
	for i, t := range channels {
		chs[i] = channel.New(uint8(i), t, cfg.RetransmissionCap, cfg.RetransmissionTimeoutCap)
	}

	return &Peer{
		Addr:     addr,
		State:    StateDisconnected,
		Channels: chs,
		Throttle: NewThrottle(32*1024, 4*1024, 256*1024),
		MTU:      NewMTUProbe(cfg.MTUFloor, cfg.MTUCeiling),
	}
}

// NextOuterSequence allocates and returns the next outer-header sequence
// number for a datagram sent to this peer, wrapping at 24 bits (§6).
func (p *Peer) NextOuterSequence() uint32 {
	seq := p.outSeq
	p.outSeq = (p.outSeq + 1) & 0xFFFFFF
	return seq
}

// MaxFragmentPayload derives the largest per-command payload from the
// peer's current MTU estimate, leaving room for the outer header, AEAD
// tag and inner command header (§4.3).
func (p *Peer) MaxFragmentPayload(headerOverhead, tagSize, innerOverhead int) int {
	size := int(p.MTU.Current()) - headerOverhead - tagSize - innerOverhead
	if size < 64 {
		size = 64
	}
	return size
}

// Touch records that a datagram was just received from this peer,
// resetting the liveness clock (§4.5).
func (p *Peer) Touch(now time.Time) {
	p.LastReceived = now
	p.PingsUnacked = 0
}

// IsLive reports whether the peer has been heard from within timeout.
func (p *Peer) IsLive(now time.Time, timeout time.Duration) bool {
	if p.LastReceived.IsZero() {
		return true
	}
	return now.Sub(p.LastReceived) <= timeout
}

// IncRef and DecRef implement spec.md §9's optional reference counting on
// top of the generation-tagged handle the host hands to the application.
// The host's slab does not consult RefCount: freeing a slot releases the
// peer whatever its count.
func (p *Peer) IncRef() { p.RefCount++ }

// DecRef releases one reference, reporting whether the peer has no
// remaining references and so may be reclaimed.
func (p *Peer) DecRef() bool {
	if p.RefCount > 0 {
		p.RefCount--
	}
	return p.RefCount == 0
}
