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

// Handshake builds and consumes the four logical messages of spec.md
// §4.5's connection handshake (connect-request, stateless verify-connect
// cookie challenge, cookie-bearing connect-request retry, and the final
// verify-connect that assigns a peer id) on top of the two wire kinds
// §6 actually enumerates for this purpose: KindConnect and
// KindVerifyConnect. After that, the client's encrypted connect-ack
// (BuildConnectAck) carries the authentication token, and the server's
// encrypted confirmation (BuildConnectedConfirmation) plays the role of the
// "connected" message: it only opens successfully once both sides share the
// derived session key.
package peer

import (
	"encoding/binary"

	"github.com/sabouaram/relaynet/crypto"
	"github.com/sabouaram/relaynet/errcode"
	"github.com/sabouaram/relaynet/wire"
)

// BuildConnectRequest constructs the client's initial connect command. On
// a retry (server demanded a cookie), cookieEcho carries the cookie the
// server previously handed back. connToken is the opaque connection token
// the server-side embedder inspects at the EventPeerCheckConnectionToken
// gate (§4.5).
func BuildConnectRequest(p *Peer, connID uint64, channelTypes []uint8, capabilities uint32, connToken, cookieEcho []byte) (wire.Command, error) {
	priv, pub, err := crypto.GenerateKeypair()
	if err != nil {
		return wire.Command{}, err
	}
	p.ConnID = connID
	p.EphemeralPriv = priv
	p.EphemeralPub = pub

	return wire.Command{
		Kind:         wire.KindConnect,
		ConnID:       connID,
		ChannelTypes: channelTypes,
		Capabilities: capabilities,
		KeyShare:     pub,
		ConnToken:    connToken,
		CookieEcho:   cookieEcho,
	}, nil
}

// HandleConnectRequest is the server's response to a connect command.
// When requireCookie is set and cmd does not carry a valid cookie echo,
// it returns a stateless verify-connect cookie challenge and assigned=false:
// the server allocates no peer state for this reply, defeating spoofed
// flood amplification (§4.5).
func HandleConnectRequest(cmd wire.Command, clientAddr []byte, cookieSecret [32]byte, requireCookie bool) (reply wire.Command, assigned bool) {
	if requireCookie {
		valid := len(cmd.CookieEcho) > 0 && crypto.VerifyCookie(cookieSecret, clientAddr, cmd.CookieEcho)
		if !valid {
			cookie := crypto.GenerateCookie(cookieSecret, clientAddr)
			return wire.Command{Kind: wire.KindVerifyConnect, Cookie: cookie}, false
		}
	}
	return wire.Command{}, true
}

// RecordConnectRequest stashes a just-accepted (cookie-validated) connect
// request's transcript-relevant fields onto the still-gating peer, without
// deriving any cryptographic material yet: §4.5's connection_pending state
// holds only what's needed to show the embedder the connection token via
// EventPeerCheckConnectionToken.
func RecordConnectRequest(p *Peer, cmd wire.Command) {
	p.ConnID = cmd.ConnID
	p.RemoteKeyShare = cmd.KeyShare
	p.ConnToken = append([]byte(nil), cmd.ConnToken...)
}

// CompleteServerHandshake runs once the embedder accepts the connection
// token (AcceptConnectionToken): it derives the session key from the
// transcript of both key shares (the client's, recorded by
// RecordConnectRequest, and a freshly generated server share) and returns
// the verify-connect reply assigning localID. It does not change the
// peer's State: the session exists so the client's connect-ack can be
// decrypted, but no application-visible connect event fires yet.
func CompleteServerHandshake(p *Peer, localID uint16, responderIdentity []byte) (wire.Command, error) {
	priv, pub, err := crypto.GenerateKeypair()
	if err != nil {
		return wire.Command{}, err
	}

	shared, err := crypto.SharedSecret(priv, p.RemoteKeyShare)
	if err != nil {
		return wire.Command{}, err
	}

	t := crypto.NewTranscript(responderIdentity)
	t.Mix(p.RemoteKeyShare[:], pub[:])
	transcript := t.Sum()
	key := crypto.DeriveSessionKey(shared, transcript)
	salt := crypto.DeriveNonceSalt(shared, transcript)

	session, err := crypto.NewSession(key, salt)
	if err != nil {
		return wire.Command{}, err
	}

	p.Session = session
	p.LocalID = localID
	p.EphemeralPriv = priv
	p.EphemeralPub = pub

	return wire.Command{
		Kind:           wire.KindVerifyConnect,
		AssignedPeerID: localID,
		KeyShare:       pub,
	}, nil
}

// BuildConnectAck constructs the client's connect-ack (§4.5's third
// logical handshake message), sent encrypted under the just-derived
// session key: an encrypted KindConnect carrying the opaque authentication
// token the server-side embedder inspects at the
// EventPeerCheckAuthenticationToken gate.
func BuildConnectAck(p *Peer, authToken []byte) wire.Command {
	return wire.Command{Kind: wire.KindConnect, ConnID: p.ConnID, AuthToken: authToken}
}

// BuildConnectedConfirmation is the server's final, encrypted "connected"
// datagram (§4.5's fourth message): an empty ping that only decrypts
// successfully once the client holds the matching session key, so its
// arrival is itself the confirmation.
func BuildConnectedConfirmation() wire.Command {
	return wire.Command{Kind: wire.KindPing, Nonce: 0}
}

// CompleteClientHandshake consumes the server's final verify-connect
// (AssignedPeerID != 0) and derives the matching session key.
func CompleteClientHandshake(p *Peer, cmd wire.Command, responderIdentity []byte) error {
	if cmd.AssignedPeerID == 0 {
		return errcode.New(errcode.ProtocolMalformedCommand)
	}

	shared, err := crypto.SharedSecret(p.EphemeralPriv, cmd.KeyShare)
	if err != nil {
		return err
	}

	t := crypto.NewTranscript(responderIdentity)
	t.Mix(p.EphemeralPub[:], cmd.KeyShare[:])
	transcript := t.Sum()
	key := crypto.DeriveSessionKey(shared, transcript)
	salt := crypto.DeriveNonceSalt(shared, transcript)

	session, err := crypto.NewSession(key, salt)
	if err != nil {
		return err
	}

	p.RemoteID = cmd.AssignedPeerID
	p.Session = session
	return nil
}

// ConnIDBytes renders a connection id as 8 big-endian bytes, usable as
// additional authenticated data for Session.Seal/Open. The host pipeline
// does not use it: its datagrams authenticate the outer header instead.
func ConnIDBytes(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}
