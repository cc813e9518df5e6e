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

// Package network is the datagram substrate of spec.md §4.1: a Provider
// abstraction a Host binds to, with two implementations. UDPProvider
// wraps net.ListenUDP the way the teacher's socket/server/udp package
// wraps a net.ListenConfig into a managed listener (New/Listen/Shutdown).
// Virtual is an in-process switch used by the test suite and by
// the interference Simulator to reproduce lossy-link scenarios without a
// real socket.
package network

import (
	"net"
	"time"

	"github.com/sabouaram/relaynet/address"
	"github.com/sabouaram/relaynet/errcode"
)

// Datagram is one inbound unit: the sender's address and the bytes it sent.
type Datagram struct {
	From address.Address
	Data []byte
}

// Provider is the transport abstraction spec.md §4.1 names: bind, send,
// receive, resolve, enumerate_interfaces. A Host never touches *net.UDPConn
// directly so the virtual substrate can stand in during tests.
type Provider interface {
	// LocalAddr returns the address the provider is bound to.
	LocalAddr() address.Address

	// Send writes one datagram to dst. It never blocks past a short
	// internal deadline; transient failures return TransportSend,
	// permanent ones TransportUnrecoverable (§7).
	Send(dst address.Address, data []byte) error

	// Receive blocks until a datagram arrives, the deadline elapses, or
	// the provider is closed, whichever first. A zero deadline means no
	// timeout.
	Receive(deadline time.Time) (Datagram, error)

	// Close releases the underlying socket or switch registration.
	Close() error
}

// UDPProvider is the real-socket Provider, grounded on the teacher's
// socket/server/udp managed-listener lifecycle (bind once, serve until
// Shutdown).
type UDPProvider struct {
	conn *net.UDPConn
	addr address.Address
}

// NewUDPProvider binds a UDP socket at bindAddr (host:port, or an empty
// host to bind all interfaces).
func NewUDPProvider(bindAddr string) (*UDPProvider, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, errcode.New(errcode.ApplicationInvalidArgument, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errcode.New(errcode.TransportUnrecoverable, err)
	}

	return &UDPProvider{
		conn: conn,
		addr: address.FromUDPAddr(conn.LocalAddr().(*net.UDPAddr)),
	}, nil
}

func (p *UDPProvider) LocalAddr() address.Address { return p.addr }

func (p *UDPProvider) Send(dst address.Address, data []byte) error {
	if _, err := p.conn.WriteToUDP(data, dst.UDPAddr()); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return errcode.New(errcode.TransportSend, err)
		}
		return errcode.New(errcode.TransportUnrecoverable, err)
	}
	return nil
}

func (p *UDPProvider) Receive(deadline time.Time) (Datagram, error) {
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return Datagram{}, errcode.New(errcode.TransportUnrecoverable, err)
	}

	buf := make([]byte, 65507)
	n, from, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Datagram{}, errcode.New(errcode.TransportSend, err)
		}
		return Datagram{}, errcode.New(errcode.TransportUnrecoverable, err)
	}

	return Datagram{From: address.FromUDPAddr(from), Data: buf[:n]}, nil
}

func (p *UDPProvider) Close() error {
	return p.conn.Close()
}
