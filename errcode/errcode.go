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

// Package errcode registers relaynet's error codes on top of the generic
// code/message registry from github.com/nabbar/golib/errors, the same way
// that library's own sub-packages (database, certificates, config/...)
// register their private code blocks in an init().
package errcode

import (
	liberr "github.com/nabbar/golib/errors"
)

// Kind groups codes the way spec.md §7 enumerates them.
type Kind uint8

const (
	KindTransport Kind = iota
	KindProtocol
	KindResource
	KindApplication
	KindTimeout
)

const (
	Transport liberr.CodeError = iota + liberr.MinAvailable
	TransportUnrecoverable
	TransportSend

	ProtocolMagicMismatch
	ProtocolVersionMismatch
	ProtocolMalformedCommand
	ProtocolMACFailure
	ProtocolDecompressBound
	ProtocolChannelMismatch
	ProtocolReassemblyTimeout

	ResourcePeerTableFull
	ResourceChannelCountExceeded
	ResourceMemory

	ApplicationInvalidArgument
	ApplicationUseAfterFree
	ApplicationClosed

	TimeoutHandshake
	TimeoutLiveness
	TimeoutRetransmission
)

var isRegistered = false

func IsRegistered() bool {
	return isRegistered
}

func init() {
	isRegistered = liberr.ExistInMapMessage(Transport)
	liberr.RegisterIdFctMessage(Transport, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case Transport:
		return "transport: send or receive failed"
	case TransportUnrecoverable:
		return "transport: socket is unrecoverable"
	case TransportSend:
		return "transport: transient send failure, will retry"
	case ProtocolMagicMismatch:
		return "protocol: magic number mismatch"
	case ProtocolVersionMismatch:
		return "protocol: version mismatch"
	case ProtocolMalformedCommand:
		return "protocol: malformed command"
	case ProtocolMACFailure:
		return "protocol: integrity tag verification failed"
	case ProtocolDecompressBound:
		return "protocol: decompressed size exceeds configured bound"
	case ProtocolChannelMismatch:
		return "protocol: channel count or type vector mismatch"
	case ProtocolReassemblyTimeout:
		return "protocol: fragment reassembly timed out"
	case ResourcePeerTableFull:
		return "resource: peer table is full"
	case ResourceChannelCountExceeded:
		return "resource: channel count exceeds configured maximum"
	case ResourceMemory:
		return "resource: allocation failed"
	case ApplicationInvalidArgument:
		return "application: invalid argument"
	case ApplicationUseAfterFree:
		return "application: use of a released handle"
	case ApplicationClosed:
		return "application: host or peer already closed"
	case TimeoutHandshake:
		return "timeout: handshake did not complete in time"
	case TimeoutLiveness:
		return "timeout: peer silence exceeded the liveness timeout"
	case TimeoutRetransmission:
		return "timeout: retransmission ceiling exceeded"
	}

	return ""
}

// New builds a relaynet error for the given code, wrapping optional parents.
func New(code liberr.CodeError, parents ...error) liberr.Error {
	return code.Error(parents...)
}
