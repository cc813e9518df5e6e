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

package channel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabouaram/relaynet/channel"
	"github.com/sabouaram/relaynet/config"
	"github.com/sabouaram/relaynet/wire"
)

func newChannel(typ config.ChannelType) *channel.Channel {
	return channel.New(0, typ, 5, time.Second)
}

func TestSendSmallPayloadIsSingleCommand(t *testing.T) {
	ch := newChannel(config.ChannelReliableOrdered)
	cmds := ch.Send([]byte("hello"), 1200, 200*time.Millisecond, time.Now())
	require.Len(t, cmds, 1)
	assert.Equal(t, wire.KindSendReliable, cmds[0].Kind)
	assert.Equal(t, 1, ch.PendingCount())
}

func TestSendLargePayloadFragments(t *testing.T) {
	ch := newChannel(config.ChannelReliableOrdered)
	payload := make([]byte, 250)
	for i := range payload {
		payload[i] = byte(i)
	}
	cmds := ch.Send(payload, 100, 200*time.Millisecond, time.Now())
	require.Len(t, cmds, 3)
	for i, cmd := range cmds {
		assert.Equal(t, wire.KindSendFragment, cmd.Kind)
		assert.Equal(t, uint16(i), cmd.FragIndex)
		assert.Equal(t, uint16(3), cmd.FragCount)
		assert.Equal(t, uint32(250), cmd.FullLen)
	}
}

func TestReassembleOutOfOrderFragments(t *testing.T) {
	sender := newChannel(config.ChannelReliableOrdered)
	receiver := newChannel(config.ChannelReliableOrdered)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	cmds := sender.Send(payload, 10, 200*time.Millisecond, time.Now())
	require.Greater(t, len(cmds), 1)

	// deliver fragments last-to-first; nothing reassembles until the final
	// one arrives, per spec.md's fragmentation-then-reassembly ordering.
	var out [][]byte
	for i := len(cmds) - 1; i >= 0; i-- {
		delivered, err := receiver.Receive(cmds[i], 0, time.Now())
		require.NoError(t, err)
		out = append(out, delivered...)
	}
	require.Len(t, out, 1)
	assert.Equal(t, payload, out[0])
}

func TestReliableOrderedBuffersUntilContiguous(t *testing.T) {
	ch := newChannel(config.ChannelReliableOrdered)
	now := time.Now()

	c0 := wire.Command{Kind: wire.KindSendReliable, Seq: 0, Payload: []byte("a")}
	c1 := wire.Command{Kind: wire.KindSendReliable, Seq: 1, Payload: []byte("b")}
	c2 := wire.Command{Kind: wire.KindSendReliable, Seq: 2, Payload: []byte("c")}

	out, err := ch.Receive(c2, 0, now)
	require.NoError(t, err)
	assert.Empty(t, out) // seq 2 arrives first, nothing deliverable yet

	out, err = ch.Receive(c0, 0, now)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a")}, out)

	out, err = ch.Receive(c1, 0, now)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("b"), []byte("c")}, out)
}

func TestUnreliableOrderedDropsStale(t *testing.T) {
	ch := newChannel(config.ChannelUnreliableOrdered)
	now := time.Now()

	out, err := ch.Receive(wire.Command{Kind: wire.KindSendUnreliable, Seq: 5, Payload: []byte("new")}, 0, now)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("new")}, out)

	// a datagram that arrives late, behind the already-delivered sequence,
	// is simply dropped rather than delivered out of order.
	out, err = ch.Receive(wire.Command{Kind: wire.KindSendUnreliable, Seq: 3, Payload: []byte("stale")}, 0, now)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUnreliableUnorderedDeliversEverything(t *testing.T) {
	ch := newChannel(config.ChannelUnreliableUnordered)
	now := time.Now()

	for _, seq := range []uint16{5, 1, 9} {
		out, err := ch.Receive(wire.Command{Kind: wire.KindSendUnsequenced, Seq: seq, Payload: []byte{byte(seq)}}, 0, now)
		require.NoError(t, err)
		assert.Equal(t, [][]byte{{byte(seq)}}, out)
	}
}

func TestAckRecordAndConsume(t *testing.T) {
	ch := newChannel(config.ChannelReliableOrdered)
	now := time.Now()

	_, err := ch.Receive(wire.Command{Kind: wire.KindSendReliable, Seq: 10, Payload: []byte("x")}, 0, now)
	require.NoError(t, err)
	_, err = ch.Receive(wire.Command{Kind: wire.KindSendReliable, Seq: 11, Payload: []byte("y")}, 0, now)
	require.NoError(t, err)

	base, bits, ok := ch.PendingAck()
	require.True(t, ok)
	assert.Equal(t, uint16(11), base)
	assert.Equal(t, uint32(1), bits) // bit 0 set: seq 10 = base-1

	sender := newChannel(config.ChannelReliableOrdered)
	sender.Send([]byte("x"), 1200, 200*time.Millisecond, now) // seq 0
	sender.Send([]byte("y"), 1200, 200*time.Millisecond, now) // seq 1
	assert.Equal(t, 2, sender.PendingCount())

	sender.ConsumeAck(1, 1) // acks seq 1 directly, seq 0 via bit 0
	assert.Equal(t, 0, sender.PendingCount())
}

func TestRetransmitBacksOffAndExpires(t *testing.T) {
	ch := newChannel(config.ChannelReliableOrdered)
	start := time.Now()
	ch.Send([]byte("payload"), 1200, 10*time.Millisecond, start)

	cmds, ceiling := ch.Retransmit(start.Add(20 * time.Millisecond))
	require.Len(t, cmds, 1)
	assert.False(t, ceiling)

	// RetransmissionCap is 5; keep expiring the (now doubling) timer until
	// the cap is exceeded and the pending send is dropped.
	now := start.Add(20 * time.Millisecond)
	exceeded := false
	for i := 0; i < 10 && !exceeded; i++ {
		now = now.Add(time.Second)
		_, ceiling = ch.Retransmit(now)
		exceeded = exceeded || ceiling
	}
	assert.True(t, exceeded)
	assert.Equal(t, 0, ch.PendingCount())
}
