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

// Package host is the orchestrator of spec.md §4.6: one Host owns a
// network.Provider, a peer table, and the datagram pipeline (wire codec,
// optional compression, integrity/encryption, optional simulator) that
// turns application sends into datagrams and datagrams back into the
// event stream an embedder drains with Service.
package host

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sabouaram/relaynet/address"
	"github.com/sabouaram/relaynet/channel"
	"github.com/sabouaram/relaynet/compress"
	"github.com/sabouaram/relaynet/config"
	"github.com/sabouaram/relaynet/crypto"
	"github.com/sabouaram/relaynet/errcode"
	"github.com/sabouaram/relaynet/logging"
	"github.com/sabouaram/relaynet/network"
	"github.com/sabouaram/relaynet/peer"
	"github.com/sabouaram/relaynet/wire"
)

const innerAckOverhead = 1 + 1 + 2 + 2 + 4 // inner header + ack base/bits, when piggybacked

// Host is one local endpoint. It is not safe for concurrent use from
// multiple goroutines beyond Service/Broadcast/Flush being called from a
// single driving loop, mirroring the teacher's managed-listener model
// where one goroutine owns the socket's lifecycle.
type Host struct {
	cfg     *config.HostConfig
	net     network.Provider
	logger  logging.Logger
	metrics *Metrics

	peers   *Slab
	byAddr  map[address.Address]Handle
	running bool

	cookieSecret [32]byte
	responderID  []byte

	eventQueue []Event

	mu sync.Mutex
}

// Create constructs a Host bound to net, ready for Start. responderIdentity
// is mixed into every handshake transcript (§4.5) and may be nil.
func Create(cfg *config.HostConfig, provider network.Provider, responderIdentity []byte, logger logging.Logger, metrics *Metrics) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard
	}

	secret, err := crypto.GenerateCookieSecret()
	if err != nil {
		return nil, err
	}

	return &Host{
		cfg:          cfg,
		net:          provider,
		logger:       logger,
		metrics:      metrics,
		peers:        NewSlab(cfg.PeerTableSize),
		byAddr:       make(map[address.Address]Handle),
		cookieSecret: secret,
		responderID:  responderIdentity,
	}, nil
}

// Start marks the host ready to service traffic. family_mode selection
// (spec.md's dual-stack hint) is the caller's responsibility when
// constructing the network.Provider; Start only flips the running flag a
// embedder can observe via IsRunning, mirroring the teacher's managed
// listener lifecycle.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return errcode.New(errcode.ApplicationInvalidArgument)
	}
	h.running = true
	h.logger.Log(logging.InfoLevel, "host started", logging.Fields{"bind": h.net.LocalAddr().String()})
	return nil
}

// LocalAddr returns the address this host's network provider is bound to,
// the value a peer passes to another host's Connect.
func (h *Host) LocalAddr() address.Address {
	return h.net.LocalAddr()
}

// IsRunning reports whether Start has been called without a matching
// Shutdown.
func (h *Host) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Shutdown releases the network provider and marks the host stopped.
func (h *Host) Shutdown() error {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
	return h.net.Close()
}

// Connect begins a handshake with addr over the channel-type vector
// configured on this host. connToken is the opaque connection token the
// remote embedder gates on (EventPeerCheckConnectionToken); authToken is
// presented later, inside the connect-ack, for the remote embedder's
// EventPeerCheckAuthenticationToken gate. Either may be nil when the
// embedder does not use that hook. Connect returns a Handle to the
// newly allocated (not-yet-connected) peer.
func (h *Host) Connect(addr address.Address, connToken, authToken []byte) (Handle, error) {
	p := peer.New(addr, h.cfg.Channels, h.cfg)
	p.State = peer.StateConnecting
	p.ConnToken = append([]byte(nil), connToken...)
	p.AuthToken = append([]byte(nil), authToken...)

	handle, err := h.peers.Alloc(p)
	if err != nil {
		return Nil, err
	}
	h.byAddr[addr] = handle

	connID := rand.Uint64()
	types := make([]uint8, len(h.cfg.Channels))
	for i, t := range h.cfg.Channels {
		types[i] = uint8(t)
	}

	cmd, err := peer.BuildConnectRequest(p, connID, types, 0, connToken, nil)
	if err != nil {
		return Nil, err
	}

	if err := h.sendHandshake(p, cmd); err != nil {
		return Nil, err
	}
	p.State = peer.StateConnectionPending
	return handle, nil
}

// Disconnect begins a graceful teardown of the peer behind handle.
func (h *Host) Disconnect(handle Handle, reason uint8) error {
	p, err := h.peers.Get(handle)
	if err != nil {
		return err
	}
	p.State = peer.StateDisconnecting
	cmd := wire.Command{Kind: wire.KindDisconnect, Reason: reason}
	return h.sendEncrypted(p, []wire.Command{cmd})
}

// Send queues payload for delivery to handle over the given channel
// index, per that channel's reliability discipline.
func (h *Host) Send(handle Handle, channelIdx uint8, payload []byte) error {
	p, err := h.peers.Get(handle)
	if err != nil {
		return err
	}
	if p.State != peer.StateConnected {
		return errcode.New(errcode.ApplicationInvalidArgument)
	}
	if int(channelIdx) >= len(p.Channels) {
		return errcode.New(errcode.ProtocolChannelMismatch)
	}

	ch := p.Channels[channelIdx]
	maxPayload := p.MaxFragmentPayload(wire.HeaderSize, wire.TagSize, wire.Command{Kind: wire.KindSendFragment}.EncodedSize())
	cmds := ch.Send(payload, maxPayload, p.RTT.RTO(), time.Now())
	return h.sendEncrypted(p, cmds)
}

// Broadcast sends payload over channelIdx to every connected peer.
func (h *Host) Broadcast(channelIdx uint8, payload []byte) error {
	var firstErr error
	h.peers.Each(func(handle Handle, p *peer.Peer) {
		if p.State != peer.StateConnected {
			return
		}
		if err := h.Send(handle, channelIdx, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// Flush sends any outstanding retransmissions immediately instead of
// waiting for their timer, and reports whether any peer still has
// unacknowledged reliable sends in flight.
func (h *Host) Flush() bool {
	pending := false
	h.peers.Each(func(handle Handle, p *peer.Peer) {
		for _, ch := range p.Channels {
			if ch.PendingCount() > 0 {
				pending = true
			}
			cmds, _ := ch.Retransmit(time.Now().Add(24 * time.Hour)) // force-expire every timer
			if len(cmds) > 0 {
				_ = h.sendEncrypted(p, cmds)
			}
		}
	})
	return pending
}

// FreeEvent releases the backing buffer of an EventPeerReceive event.
// Go's garbage collector reclaims the memory; FreeEvent exists for API
// symmetry with the ref-counted handle discipline of spec.md §9 and to
// give embedders a single place to instrument buffer reuse later.
func (h *Host) FreeEvent(ev *Event) {
	ev.Data = nil
}

// Resolve returns the address behind a peer handle.
func (h *Host) Resolve(handle Handle) (address.Address, error) {
	p, err := h.peers.Get(handle)
	if err != nil {
		return address.Address{}, err
	}
	return p.Addr, nil
}
