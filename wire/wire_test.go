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

package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabouaram/relaynet/errcode"
	"github.com/sabouaram/relaynet/wire"
)

func TestOuterHeaderRoundTrip(t *testing.T) {
	cases := []wire.OuterHeader{
		{Magic: wire.Magic, Version: wire.ProtocolVersion, Flags: 0, SessionID: 0, Sequence: 0, PayloadLen: 0},
		{Magic: wire.Magic, Version: wire.ProtocolVersion, Flags: wire.FlagEncrypted | wire.FlagCarriesAck, SessionID: 42, Sequence: 0xABCDEF, PayloadLen: 1200},
		{Magic: wire.Magic, Version: wire.ProtocolVersion, Flags: wire.FlagCompressed | wire.FlagFragmented, SessionID: 0xFFFF, Sequence: 0xFFFFFF, PayloadLen: 0xFFFF},
	}

	for _, want := range cases {
		buf := make([]byte, wire.HeaderSize)
		want.Encode(buf)

		got, err := wire.Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestOuterHeaderDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, wire.HeaderSize)
	wire.OuterHeader{Magic: 0xdeadbeef, Version: wire.ProtocolVersion}.Encode(buf)

	_, err := wire.Decode(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ProtocolMagicMismatch)
}

func TestOuterHeaderDecodeRejectsBadVersion(t *testing.T) {
	buf := make([]byte, wire.HeaderSize)
	wire.OuterHeader{Magic: wire.Magic, Version: wire.ProtocolVersion + 1}.Encode(buf)

	_, err := wire.Decode(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ProtocolVersionMismatch)
}

func TestOuterHeaderDecodeRejectsShortBuffer(t *testing.T) {
	_, err := wire.Decode(make([]byte, wire.HeaderSize-1))
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ProtocolMalformedCommand)
}

func TestCommandRoundTrip(t *testing.T) {
	cases := []wire.Command{
		{Kind: wire.KindNone, Channel: 1, Seq: 7},
		{Kind: wire.KindAck, Channel: 2, Seq: 0, AckBase: 500, AckBits: 0xCAFEBABE},
		{Kind: wire.KindPing, Channel: 0, Seq: 0, Nonce: 12345},
		{Kind: wire.KindDisconnect, Channel: 0, Seq: 0, Reason: 3},
		{Kind: wire.KindSendReliable, Channel: 4, Seq: 99, Payload: []byte("hello, world")},
		{Kind: wire.KindSendUnreliable, Channel: 1, Seq: 1, Payload: []byte{}},
		{Kind: wire.KindSendUnsequenced, Channel: 1, Seq: 0, Payload: []byte{1, 2, 3}},
		{Kind: wire.KindSendFragment, Channel: 5, Seq: 10, FragIndex: 1, FragCount: 4, FullLen: 4096, Payload: []byte("chunk")},
		{Kind: wire.KindBandwidthLimit, IncomingLimit: 1000, OutgoingLimit: 2000},
		{Kind: wire.KindThrottleConfigure, Rate: 10, Burst: 20},
		{Kind: wire.KindMTUProbe, ProbeSize: 1200},
		{Kind: wire.KindMTUResponse, ProbeSize: 1200},
		{
			Kind: wire.KindConnect, ConnID: 0x0102030405060708,
			ChannelTypes: []uint8{0, 2, 3}, Capabilities: 7,
			ConnToken: []byte{9, 9}, KeyShare: [32]byte{1: 1, 31: 0xff},
			CookieEcho: []byte{5, 6, 7, 8},
		},
		{
			Kind: wire.KindVerifyConnect, AssignedPeerID: 55,
			Cookie: []byte{1, 2, 3}, KeyShare: [32]byte{0: 0xaa},
		},
	}

	for _, want := range cases {
		var buf []byte
		buf = want.Encode(buf)
		assert.Equal(t, want.EncodedSize(), len(buf))

		got, n, err := wire.DecodeCommand(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Channel, got.Channel)
		assert.Equal(t, want.Seq, got.Seq)

		switch want.Kind {
		case wire.KindSendReliable, wire.KindSendUnreliable, wire.KindSendUnsequenced, wire.KindSendFragment:
			assert.Equal(t, want.Payload, got.Payload)
		}
	}
}

func TestCommandRoundTripConnectAuthToken(t *testing.T) {
	cases := []wire.Command{
		// cleartext first connect-request: ConnToken set, AuthToken absent.
		{Kind: wire.KindConnect, ConnID: 1, ChannelTypes: []uint8{0}, ConnToken: []byte("room-9")},
		// encrypted connect-ack: AuthToken set, ConnToken absent.
		{Kind: wire.KindConnect, ConnID: 1, AuthToken: []byte("s3cr3t-bearer-token")},
	}

	for _, want := range cases {
		var buf []byte
		buf = want.Encode(buf)
		assert.Equal(t, want.EncodedSize(), len(buf))

		got, n, err := wire.DecodeCommand(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, want.ConnID, got.ConnID)
		assert.Equal(t, want.ConnToken, got.ConnToken)
		assert.Equal(t, want.AuthToken, got.AuthToken)
	}
}

func TestDecodeCommandsSequence(t *testing.T) {
	var buf []byte
	buf = wire.Command{Kind: wire.KindPing, Nonce: 1}.Encode(buf)
	buf = wire.Command{Kind: wire.KindSendReliable, Channel: 1, Seq: 3, Payload: []byte("x")}.Encode(buf)

	cmds, err := wire.DecodeCommands(buf)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, wire.KindPing, cmds[0].Kind)
	assert.Equal(t, wire.KindSendReliable, cmds[1].Kind)
}

func TestDecodeCommandTruncatedErrors(t *testing.T) {
	buf := wire.Command{Kind: wire.KindSendReliable, Payload: []byte("abcdef")}.Encode(nil)
	_, _, err := wire.DecodeCommand(buf[:len(buf)-1])
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ProtocolMalformedCommand)
}
