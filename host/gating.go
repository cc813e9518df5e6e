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

// Gating implements the three host-embedder decision points of spec.md
// §4.5's connection_pending → authentication_pending → approval_pending
// chain. A candidate peer sits in one gate at a time; the embedder
// inspects its token via PendingConnectionToken/PendingAuthenticationToken
// after draining the matching event from Service, then calls the Accept
// or Reject method for that gate. Rejecting at any gate sends the
// connecting client a cleartext denial and frees the candidate; the
// client-side host surfaces that as EventPeerDenial.
package host

import (
	"github.com/sabouaram/relaynet/errcode"
	"github.com/sabouaram/relaynet/peer"
	"github.com/sabouaram/relaynet/wire"
)

const denyReasonGating uint8 = 1

// PendingConnectionToken returns the opaque connection token a candidate
// presented in its connect-request, for inspection at the
// EventPeerCheckConnectionToken gate.
func (h *Host) PendingConnectionToken(handle Handle) ([]byte, error) {
	p, err := h.peers.Get(handle)
	if err != nil {
		return nil, err
	}
	return p.ConnToken, nil
}

// PendingAuthenticationToken returns the opaque authentication token a
// candidate presented in its connect-ack, for inspection at the
// EventPeerCheckAuthenticationToken gate.
func (h *Host) PendingAuthenticationToken(handle Handle) ([]byte, error) {
	p, err := h.peers.Get(handle)
	if err != nil {
		return nil, err
	}
	return p.AuthToken, nil
}

// AcceptConnectionToken admits a candidate past the first gate: the host
// derives the session key (the candidate's client key share was recorded
// by RecordConnectRequest) and sends the verify-connect reply, advancing
// the candidate to authentication_pending to await the client's
// connect-ack.
func (h *Host) AcceptConnectionToken(handle Handle) error {
	p, err := h.peers.Get(handle)
	if err != nil {
		return err
	}
	if p.State != peer.StateConnectionPending {
		return errcode.New(errcode.ApplicationInvalidArgument)
	}

	verify, err := peer.CompleteServerHandshake(p, uint16(handle.Index+1), h.responderID)
	if err != nil {
		h.metrics.handshakeFailure()
		return err
	}

	p.State = peer.StateAuthenticationPending
	return h.net.Send(p.Addr, encodeCleartext(verify))
}

// RejectConnectionToken refuses a candidate at the first gate.
func (h *Host) RejectConnectionToken(handle Handle, reason uint8) error {
	return h.denyCandidate(handle, reason, peer.StateConnectionPending)
}

// AcceptAuthenticationToken admits a candidate past the second gate,
// advancing it to approval_pending to await the embedder's final
// ApproveConnection/DenyConnection call.
func (h *Host) AcceptAuthenticationToken(handle Handle) error {
	p, err := h.peers.Get(handle)
	if err != nil {
		return err
	}
	if p.State != peer.StateAuthenticationPending {
		return errcode.New(errcode.ApplicationInvalidArgument)
	}
	p.State = peer.StateApprovalPending
	h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerApproval, Peer: handle})
	return nil
}

// RejectAuthenticationToken refuses a candidate at the second gate.
func (h *Host) RejectAuthenticationToken(handle Handle, reason uint8) error {
	return h.denyCandidate(handle, reason, peer.StateAuthenticationPending)
}

// ApproveConnection admits a candidate past the third and final gate: the
// peer becomes fully connected, the server sends its own confirmation
// datagram, and both sides' Service loops will surface EventPeerConnect
// (this host's own pass does so immediately below; the client's on
// receipt of the confirmation datagram, see handleDatagram).
func (h *Host) ApproveConnection(handle Handle) error {
	p, err := h.peers.Get(handle)
	if err != nil {
		return err
	}
	if p.State != peer.StateApprovalPending {
		return errcode.New(errcode.ApplicationInvalidArgument)
	}

	p.State = peer.StateConnected
	h.metrics.peerCountDelta(1)
	if err := h.sendEncrypted(p, []wire.Command{peer.BuildConnectedConfirmation()}); err != nil {
		return err
	}
	h.eventQueue = append(h.eventQueue, Event{Kind: EventPeerConnect, Peer: handle})
	return nil
}

// DenyConnection refuses a candidate at the final, application-approval
// gate.
func (h *Host) DenyConnection(handle Handle, reason uint8) error {
	return h.denyCandidate(handle, reason, peer.StateApprovalPending)
}

func (h *Host) denyCandidate(handle Handle, reason uint8, expect peer.State) error {
	p, err := h.peers.Get(handle)
	if err != nil {
		return err
	}
	if p.State != expect {
		return errcode.New(errcode.ApplicationInvalidArgument)
	}

	addr := p.Addr
	deny := wire.Command{Kind: wire.KindDisconnect, Reason: reason}
	_ = h.net.Send(addr, encodeCleartext(deny))

	delete(h.byAddr, addr)
	_ = h.peers.Free(handle)
	h.metrics.handshakeFailure()
	return nil
}
