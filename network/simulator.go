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
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
	"time"

	"github.com/sabouaram/relaynet/address"
	"github.com/sabouaram/relaynet/config"
	"github.com/sabouaram/relaynet/errcode"
)

// Simulator wraps a Provider and subjects every datagram to the
// interference pipeline of spec.md §4.1: loss, then duplication, then
// reorder, then bit-flip corruption, then added latency and jitter. Each
// stage is independent and skipped entirely when its factor is zero, so
// an unconfigured Simulator behaves like a transparent passthrough.
type Simulator struct {
	under Provider
	cfg   config.SimulatorConfig

	mu  sync.Mutex
	rng *mrand.Rand

	out  chan Datagram
	done chan struct{}
	once sync.Once
}

// NewSimulator wraps under with the interference pipeline described by
// cfg. The PRNG is seeded from the host CSPRNG (never math/rand's global,
// predictable default), resolving spec.md's open question on seeding by
// drawing fresh entropy per Simulator instance.
func NewSimulator(under Provider, cfg config.SimulatorConfig) (*Simulator, error) {
	var seedBuf [32]byte
	if _, err := rand.Read(seedBuf[:]); err != nil {
		return nil, errcode.New(errcode.ResourceMemory, err)
	}
	seed1 := binary.LittleEndian.Uint64(seedBuf[0:8])
	seed2 := binary.LittleEndian.Uint64(seedBuf[8:16])

	s := &Simulator{
		under: under,
		cfg:   cfg,
		rng:   mrand.New(mrand.NewPCG(seed1, seed2)),
		out:   make(chan Datagram, 256),
		done:  make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (s *Simulator) LocalAddr() address.Address { return s.under.LocalAddr() }

// roll reports whether an event with probability factor/2^32 fires.
func (s *Simulator) roll(factor uint32) bool {
	if factor == 0 {
		return false
	}
	s.mu.Lock()
	v := s.rng.Uint32()
	s.mu.Unlock()
	return v < factor
}

// flipBits corrupts between BitFlipMin and BitFlipMax bits of data,
// chosen uniformly when the bounds differ, exactly BitFlipMin when equal
// (spec.md's open question on the rounding rule).
func (s *Simulator) flipBits(data []byte) {
	if len(data) == 0 {
		return
	}

	s.mu.Lock()
	count := int(s.cfg.BitFlipMin)
	if s.cfg.BitFlipMax > s.cfg.BitFlipMin {
		span := int(s.cfg.BitFlipMax-s.cfg.BitFlipMin) + 1
		count = int(s.cfg.BitFlipMin) + s.rng.IntN(span)
	}
	for i := 0; i < count; i++ {
		bit := s.rng.IntN(len(data) * 8)
		data[bit/8] ^= 1 << uint(bit%8)
	}
	s.mu.Unlock()
}

func (s *Simulator) latency(baseMS, jitterMS uint32) time.Duration {
	s.mu.Lock()
	d := time.Duration(baseMS) * time.Millisecond
	if jitterMS > 0 {
		d += time.Duration(s.rng.IntN(int(jitterMS)+1)) * time.Millisecond
	}
	s.mu.Unlock()
	return d
}

// Send applies the outgoing half of the pipeline, then either drops the
// datagram, sends it once, or sends it twice (duplication).
func (s *Simulator) Send(dst address.Address, data []byte) error {
	if s.roll(s.cfg.OutgoingLossFactor) {
		return nil
	}

	cp := append([]byte(nil), data...)
	if s.roll(s.cfg.BitFlipFactor) {
		s.flipBits(cp)
	}

	send := func(payload []byte) {
		d := s.latency(s.cfg.OutgoingLatencyMS, s.cfg.JitterMS)
		if s.roll(s.cfg.ReorderFactor) {
			d += s.latency(s.cfg.OutgoingLatencyMS, s.cfg.JitterMS)
		}
		if d <= 0 {
			_ = s.under.Send(dst, payload)
			return
		}
		time.AfterFunc(d, func() { _ = s.under.Send(dst, payload) })
	}

	send(cp)
	if s.roll(s.cfg.OutgoingDupFactor) {
		send(append([]byte(nil), cp...))
	}
	return nil
}

// pump continuously drains the underlying provider and re-injects the
// incoming half of the interference pipeline before datagrams reach
// Receive.
func (s *Simulator) pump() {
	for {
		dgram, err := s.under.Receive(time.Time{})
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}

		if s.roll(s.cfg.IncomingLossFactor) {
			continue
		}

		deliver := func(dgram Datagram) {
			if s.roll(s.cfg.BitFlipFactor) {
				s.flipBits(dgram.Data)
			}
			d := s.latency(s.cfg.IncomingLatencyMS, s.cfg.JitterMS)
			if s.roll(s.cfg.ReorderFactor) || s.roll(s.cfg.OutOfOrderFactor) {
				d += s.latency(s.cfg.IncomingLatencyMS, s.cfg.JitterMS)
			}
			if d <= 0 {
				select {
				case s.out <- dgram:
				case <-s.done:
				}
				return
			}
			time.AfterFunc(d, func() {
				select {
				case s.out <- dgram:
				case <-s.done:
				}
			})
		}

		deliver(dgram)
		if s.roll(s.cfg.IncomingDupFactor) {
			dup := Datagram{From: dgram.From, Data: append([]byte(nil), dgram.Data...)}
			deliver(dup)
		}
	}
}

func (s *Simulator) Receive(deadline time.Time) (Datagram, error) {
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case d := <-s.out:
		return d, nil
	case <-timeout:
		return Datagram{}, errcode.New(errcode.TransportSend)
	case <-s.done:
		return Datagram{}, errcode.New(errcode.TransportUnrecoverable)
	}
}

func (s *Simulator) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.under.Close()
}
