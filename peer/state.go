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

// Package peer is the per-connection state machine of spec.md §4.5: the
// handshake, RTT estimation, throttle/congestion control and MTU
// discovery that together make one remote endpoint a Peer.
package peer

import "time"

// State is one node of spec.md §4.5's connection state machine.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectionPending
	StateAuthenticationPending
	StateApprovalPending
	StateConnected
	StateDisconnectLater
	StateDisconnecting
	StateZombie
	StateAcknowledgingConnect
	StateAcknowledgingDisconnect
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectionPending:
		return "connection_pending"
	case StateAuthenticationPending:
		return "authentication_pending"
	case StateApprovalPending:
		return "approval_pending"
	case StateConnected:
		return "connected"
	case StateDisconnectLater:
		return "disconnect_later"
	case StateDisconnecting:
		return "disconnecting"
	case StateZombie:
		return "zombie"
	case StateAcknowledgingConnect:
		return "acknowledging_connect"
	case StateAcknowledgingDisconnect:
		return "acknowledging_disconnect"
	default:
		return "unknown"
	}
}

// RTTEstimator tracks smoothed RTT and its variance using the classic
// Jacobson/Karels coefficients (α=1/8, β=1/4) spec.md §4.5 names.
type RTTEstimator struct {
	srtt    time.Duration
	rttvar  time.Duration
	primed  bool
}

// Update folds one new RTT sample into the estimator.
func (e *RTTEstimator) Update(sample time.Duration) {
	if !e.primed {
		e.srtt = sample
		e.rttvar = sample / 2
		e.primed = true
		return
	}

	diff := e.srtt - sample
	if diff < 0 {
		diff = -diff
	}
	e.rttvar = e.rttvar - e.rttvar/4 + diff/4
	e.srtt = e.srtt - e.srtt/8 + sample/8
}

// SRTT returns the current smoothed round-trip time estimate.
func (e *RTTEstimator) SRTT() time.Duration {
	if !e.primed {
		return 500 * time.Millisecond
	}
	return e.srtt
}

// RTO returns the retransmission timeout derived from SRTT and its
// variance, the initial value to seed a Channel's pendingSend with.
func (e *RTTEstimator) RTO() time.Duration {
	if !e.primed {
		return time.Second
	}
	rto := e.srtt + 4*e.rttvar
	if rto < 100*time.Millisecond {
		rto = 100 * time.Millisecond
	}
	return rto
}

// Throttle is the congestion window of spec.md §4.5: multiplicative
// decrease on loss, additive increase on sustained success, bounding how
// many bytes may be outstanding (unacknowledged) at once.
type Throttle struct {
	window    uint32
	floor     uint32
	ceiling   uint32
	sinceLoss uint32
}

// NewThrottle seeds a Throttle at the given starting window, bounded to
// [floor, ceiling].
func NewThrottle(start, floor, ceiling uint32) *Throttle {
	return &Throttle{window: start, floor: floor, ceiling: ceiling}
}

// Window returns the current congestion window, in bytes.
func (t *Throttle) Window() uint32 { return t.window }

// OnLoss halves the window (bounded by floor), the multiplicative-decrease
// half of AIMD.
func (t *Throttle) OnLoss() {
	t.window /= 2
	if t.window < t.floor {
		t.window = t.floor
	}
	t.sinceLoss = 0
}

// OnAck grows the window additively every few acknowledgments once the
// window has been stable for a while, the increase half of AIMD.
func (t *Throttle) OnAck(bytesAcked uint32) {
	t.sinceLoss++
	if t.sinceLoss%4 != 0 {
		return
	}
	t.window += bytesAcked / 8
	if t.window > t.ceiling {
		t.window = t.ceiling
	}
}

// MTUProbe runs the binary search of spec.md §4.5 between a configured
// floor and ceiling, settling on the largest datagram size observed to
// round-trip successfully.
type MTUProbe struct {
	floor   uint16
	ceiling uint16
	low     uint16
	high    uint16
	current uint16
	settled bool
}

// NewMTUProbe starts a probe between floor and ceiling.
func NewMTUProbe(floor, ceiling uint16) *MTUProbe {
	p := &MTUProbe{floor: floor, ceiling: ceiling, low: floor, high: ceiling}
	p.current = p.midpoint()
	return p
}

func (p *MTUProbe) midpoint() uint16 {
	return p.low + (p.high-p.low+1)/2
}

// Current is the size the next probe datagram should use.
func (p *MTUProbe) Current() uint16 { return p.current }

// Settled reports whether the search has converged.
func (p *MTUProbe) Settled() bool { return p.settled }

// OnSuccess records that a probe at Current() round-tripped, narrowing
// the search upward.
func (p *MTUProbe) OnSuccess() {
	p.low = p.current
	p.advance()
}

// OnFailure records that a probe at Current() was lost or rejected,
// narrowing the search downward.
func (p *MTUProbe) OnFailure() {
	p.high = p.current - 1
	p.advance()
}

func (p *MTUProbe) advance() {
	if p.high <= p.low {
		p.current = p.low
		p.settled = true
		return
	}
	next := p.midpoint()
	if next == p.current {
		p.current = p.low
		p.settled = true
		return
	}
	p.current = next
}
