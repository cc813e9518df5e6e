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

// EventKind enumerates the event taxonomy spec.md §4.6 names.
type EventKind uint8

const (
	EventNone EventKind = iota
	EventPeerCheckConnectionToken
	EventPeerCheckAuthenticationToken
	EventPeerApproval
	EventPeerConnect
	EventPeerDisconnect
	EventPeerDenial
	EventPeerMTU
	EventPeerReceive
)

func (k EventKind) String() string {
	switch k {
	case EventPeerCheckConnectionToken:
		return "peer_check_connection_token"
	case EventPeerCheckAuthenticationToken:
		return "peer_check_authentication_token"
	case EventPeerApproval:
		return "peer_approval"
	case EventPeerConnect:
		return "peer_connect"
	case EventPeerDisconnect:
		return "peer_disconnect"
	case EventPeerDenial:
		return "peer_denial"
	case EventPeerMTU:
		return "peer_mtu"
	case EventPeerReceive:
		return "peer_receive"
	default:
		return "none"
	}
}

// Event is the unit service() dequeues at most one of per pass (§4.6).
// Data is only populated for EventPeerReceive and is owned by the caller
// until FreeEvent releases its backing buffer.
type Event struct {
	Kind    EventKind
	Peer    Handle
	Channel uint8
	Data    []byte
	Reason  uint8
}
