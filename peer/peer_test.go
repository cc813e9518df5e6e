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

package peer_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabouaram/relaynet/address"
	"github.com/sabouaram/relaynet/config"
	"github.com/sabouaram/relaynet/peer"
)

func TestRTTEstimatorConverges(t *testing.T) {
	var e peer.RTTEstimator
	assert.Equal(t, time.Second, e.RTO()) // unprimed default

	e.Update(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, e.SRTT())

	for i := 0; i < 20; i++ {
		e.Update(100 * time.Millisecond)
	}
	assert.InDelta(t, float64(100*time.Millisecond), float64(e.SRTT()), float64(2*time.Millisecond))
}

func TestThrottleAIMD(t *testing.T) {
	th := peer.NewThrottle(1024, 256, 8192)
	assert.Equal(t, uint32(1024), th.Window())

	th.OnLoss()
	assert.Equal(t, uint32(512), th.Window())

	for i := 0; i < 4; i++ {
		th.OnAck(64)
	}
	assert.Greater(t, th.Window(), uint32(512))

	for i := 0; i < 100; i++ {
		th.OnLoss()
	}
	assert.Equal(t, uint32(256), th.Window()) // never below floor
}

func TestMTUProbeConverges(t *testing.T) {
	p := peer.NewMTUProbe(576, 1500)
	assert.False(t, p.Settled())

	// simulate every probe succeeding: the search should climb to the
	// ceiling and settle.
	for i := 0; i < 20 && !p.Settled(); i++ {
		p.OnSuccess()
	}
	assert.True(t, p.Settled())
	assert.Equal(t, uint16(1500), p.Current())
}

func TestMTUProbeSettlesBelowCeilingOnFailure(t *testing.T) {
	p := peer.NewMTUProbe(576, 1500)
	for i := 0; i < 20 && !p.Settled(); i++ {
		p.OnFailure()
	}
	assert.True(t, p.Settled())
	assert.Equal(t, uint16(576), p.Current())
}

func TestHandshakeDerivesMatchingSession(t *testing.T) {
	clientCfg := &config.HostConfig{MTUFloor: 576, MTUCeiling: 1500, RetransmissionCap: 5, RetransmissionTimeoutCap: time.Second}
	types := []config.ChannelType{config.ChannelReliableOrdered}

	clientAddr := address.FromUDPAddr(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1})
	serverAddr := address.FromUDPAddr(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2})

	client := peer.New(clientAddr, types, clientCfg)
	server := peer.New(serverAddr, types, clientCfg)

	connReq, err := peer.BuildConnectRequest(client, 0xA5A5, []uint8{0}, 0, []byte("conn-token"), nil)
	require.NoError(t, err)

	reply, assigned := peer.HandleConnectRequest(connReq, []byte("client-addr"), [32]byte{}, false)
	require.True(t, assigned)
	assert.Equal(t, uint16(0), reply.AssignedPeerID) // no reply body expected on the fast path

	peer.RecordConnectRequest(server, connReq)
	assert.Equal(t, connReq.ConnID, server.ConnID)
	assert.Equal(t, []byte("conn-token"), server.ConnToken)

	verify, err := peer.CompleteServerHandshake(server, 7, []byte("responder"))
	require.NoError(t, err)
	require.NotNil(t, server.Session)

	require.NoError(t, peer.CompleteClientHandshake(client, verify, []byte("responder")))
	require.NotNil(t, client.Session)
	assert.Equal(t, uint16(7), client.RemoteID)

	plaintext := []byte("hello over the fresh session")
	ciphertext := client.Session.Seal(nil, peer.ConnIDBytes(client.ConnID), 0, plaintext)
	opened, err := server.Session.Open(nil, peer.ConnIDBytes(server.ConnID), 0, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}
