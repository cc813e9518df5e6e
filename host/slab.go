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
	"github.com/sabouaram/relaynet/errcode"
	"github.com/sabouaram/relaynet/peer"
)

// Handle is the generation-tagged reference spec.md §9's redesign flag
// asks for: the application holds a Handle, never a *peer.Peer, so a
// stale handle from a reused slab slot is rejected instead of silently
// dereferencing a different connection.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Nil is the zero Handle, never a valid allocation.
var Nil = Handle{}

type slabEntry struct {
	peer       *peer.Peer
	generation uint32
	occupied   bool
}

// Slab is the host's peer table: a fixed-capacity arena indexed by local
// peer id, with a free list for reuse (§3's bounded-resource discipline).
type Slab struct {
	entries  []slabEntry
	freeList []uint32
	capacity int
}

// NewSlab preallocates a Slab with room for capacity peers.
func NewSlab(capacity int) *Slab {
	s := &Slab{entries: make([]slabEntry, 0, capacity), capacity: capacity}
	return s
}

// Alloc reserves a slot for p, returning ResourcePeerTableFull once the
// table is at capacity.
func (s *Slab) Alloc(p *peer.Peer) (Handle, error) {
	if n := len(s.freeList); n > 0 {
		idx := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		e := &s.entries[idx]
		e.peer = p
		e.occupied = true
		return Handle{Index: idx, Generation: e.generation}, nil
	}

	if len(s.entries) >= s.capacity {
		return Nil, errcode.New(errcode.ResourcePeerTableFull)
	}

	// generations start at 1 so no allocation ever equals Nil
	idx := uint32(len(s.entries))
	s.entries = append(s.entries, slabEntry{peer: p, occupied: true, generation: 1})
	return Handle{Index: idx, Generation: 1}, nil
}

// Get dereferences h, returning ApplicationUseAfterFree if the slot has
// since been freed and reused (generation mismatch) or was never valid.
func (s *Slab) Get(h Handle) (*peer.Peer, error) {
	if int(h.Index) >= len(s.entries) {
		return nil, errcode.New(errcode.ApplicationUseAfterFree)
	}
	e := &s.entries[h.Index]
	if !e.occupied || e.generation != h.Generation {
		return nil, errcode.New(errcode.ApplicationUseAfterFree)
	}
	return e.peer, nil
}

// Free releases h's slot, bumping its generation so any outstanding copy
// of h is rejected by a future Get.
func (s *Slab) Free(h Handle) error {
	if int(h.Index) >= len(s.entries) {
		return errcode.New(errcode.ApplicationUseAfterFree)
	}
	e := &s.entries[h.Index]
	if !e.occupied || e.generation != h.Generation {
		return errcode.New(errcode.ApplicationUseAfterFree)
	}
	e.occupied = false
	e.peer = nil
	e.generation++
	s.freeList = append(s.freeList, h.Index)
	return nil
}

// Len reports how many peers currently occupy the slab.
func (s *Slab) Len() int {
	n := 0
	for _, e := range s.entries {
		if e.occupied {
			n++
		}
	}
	return n
}

// Each calls fn for every occupied slot. fn must not mutate the Slab.
func (s *Slab) Each(fn func(Handle, *peer.Peer)) {
	for i := range s.entries {
		e := &s.entries[i]
		if e.occupied {
			fn(Handle{Index: uint32(i), Generation: e.generation}, e.peer)
		}
	}
}
