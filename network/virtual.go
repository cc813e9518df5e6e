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

package network

import (
	"sync"
	"time"

	"github.com/sabouaram/relaynet/address"
	"github.com/sabouaram/relaynet/errcode"
)

// Switch is an in-process registry of Virtual providers, standing in for
// the physical network in integration specs (spec.md §8's seed scenarios
// run entirely against a Switch, no real socket involved).
type Switch struct {
	mu    sync.Mutex
	peers map[address.Address]*Virtual
	next  uint16
}

// NewSwitch creates an empty switch. Virtual providers register with it
// via Bind.
func NewSwitch() *Switch {
	return &Switch{peers: make(map[address.Address]*Virtual)}
}

// Bind allocates a fresh loopback-style address on the switch and returns
// a Provider bound to it.
func (s *Switch) Bind() *Virtual {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	addr := address.Address{Family: address.FamilyV4, Host: [16]byte{10: 0xff, 11: 0xff, 15: 1}, Port: s.next}

	v := &Virtual{
		sw:    s,
		addr:  addr,
		inbox: make(chan Datagram, 256),
		done:  make(chan struct{}),
	}
	s.peers[addr] = v
	return v
}

func (s *Switch) deliver(dst address.Address, dgram Datagram) error {
	s.mu.Lock()
	v, ok := s.peers[dst]
	s.mu.Unlock()
	if !ok {
		return errcode.New(errcode.TransportSend)
	}

	select {
	case v.inbox <- dgram:
		return nil
	default:
		return errcode.New(errcode.TransportSend)
	}
}

func (s *Switch) unbind(addr address.Address) {
	s.mu.Lock()
	delete(s.peers, addr)
	s.mu.Unlock()
}

// Virtual is a Provider implementation backed by a Switch: Send hands the
// datagram straight to the destination's inbox channel, Receive blocks on
// its own.
type Virtual struct {
	sw    *Switch
	addr  address.Address
	inbox chan Datagram
	done  chan struct{}
	once  sync.Once
}

func (v *Virtual) LocalAddr() address.Address { return v.addr }

func (v *Virtual) Send(dst address.Address, data []byte) error {
	cp := append([]byte(nil), data...)
	return v.sw.deliver(dst, Datagram{From: v.addr, Data: cp})
}

func (v *Virtual) Receive(deadline time.Time) (Datagram, error) {
	var timer *time.Timer
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer = time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case d := <-v.inbox:
		return d, nil
	case <-timeout:
		return Datagram{}, errcode.New(errcode.TransportSend)
	case <-v.done:
		return Datagram{}, errcode.New(errcode.TransportUnrecoverable)
	}
}

func (v *Virtual) Close() error {
	v.once.Do(func() {
		close(v.done)
		v.sw.unbind(v.addr)
	})
	return nil
}
