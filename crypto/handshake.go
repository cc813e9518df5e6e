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

package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/curve25519"

	"github.com/sabouaram/relaynet/errcode"
)

// HandshakeLabel seeds the transcript hash so this protocol's handshake
// transcripts never collide with an unrelated protocol reusing the same
// curve, in the manner of WireGuard's construction/identifier labels.
const HandshakeLabel = "relaynet v1 handshake"

// GenerateKeypair draws a fresh X25519 private/public keypair from the
// host CSPRNG, grounding spec.md §4.5's "ephemeral key share" requirement.
func GenerateKeypair() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, errcode.New(errcode.ResourceMemory, err)
	}
	// clamp per RFC 7748
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, errcode.New(errcode.ApplicationInvalidArgument, err)
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

// SharedSecret computes the X25519 Diffie-Hellman output between a local
// private key and a peer's public key share.
func SharedSecret(priv, peerPub [32]byte) ([32]byte, error) {
	var out [32]byte
	raw, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return out, errcode.New(errcode.ApplicationInvalidArgument, err)
	}
	copy(out[:], raw)
	return out, nil
}

// Transcript accumulates a running blake2s hash over every handshake
// message exchanged so far, so the derived session key is bound to the
// exact sequence of messages both sides observed (§4.5's replay and
// confusion resistance).
type Transcript struct {
	h [blake2s.Size]byte
}

// NewTranscript seeds a Transcript with HandshakeLabel and the responder's
// long-lived identity, if any.
func NewTranscript(responderIdentity []byte) *Transcript {
	t := &Transcript{}
	hash, _ := blake2s.New256(nil)
	hash.Write([]byte(HandshakeLabel))
	if len(responderIdentity) > 0 {
		hash.Write(responderIdentity)
	}
	hash.Sum(t.h[:0])
	return t
}

// Mix folds additional handshake data (a key share, a token, a nonce) into
// the transcript hash.
func (t *Transcript) Mix(data ...[]byte) {
	hash, _ := blake2s.New256(nil)
	hash.Write(t.h[:])
	for _, d := range data {
		hash.Write(d)
	}
	hash.Sum(t.h[:0])
}

// Sum returns the current transcript hash, used both to derive the
// session key and as authenticated context for the first encrypted
// message of the handshake.
func (t *Transcript) Sum() [blake2s.Size]byte { return t.h }

// DeriveSessionKey combines the X25519 shared secret with the transcript
// hash to produce the chacha20poly1305 session key, so a transcript
// divergence (a tampered or reordered handshake message) yields a key
// mismatch rather than a silently accepted handshake.
func DeriveSessionKey(shared [32]byte, transcript [blake2s.Size]byte) [32]byte {
	var out [32]byte
	mac, _ := blake2s.New256(shared[:])
	mac.Write(transcript[:])
	mac.Sum(out[:0])
	return out
}

// DeriveNonceSalt derives the 8-byte per-session nonce salt Session mixes
// into every AEAD nonce (§4.2(b)) from the same shared secret and
// transcript DeriveSessionKey uses, under a distinct domain label so the
// two derived values are independent. Both ends of a handshake compute an
// identical shared secret and transcript (the X25519 agreement is
// symmetric and both sides mix the same two key shares in the same order),
// so this never needs to be carried on the wire, unlike a value drawn
// independently from each side's own CSPRNG.
func DeriveNonceSalt(shared [32]byte, transcript [blake2s.Size]byte) [8]byte {
	var salt [8]byte
	var full [blake2s.Size]byte
	mac, _ := blake2s.New256(shared[:])
	mac.Write(transcript[:])
	mac.Write([]byte("relaynet v1 nonce-salt"))
	mac.Sum(full[:0])
	copy(salt[:], full[:8])
	return salt
}

// cookieMAC computes the HMAC-SHA256 of a client address under secret,
// the stateless cookie of spec.md §4.5 that lets a host answer a connect
// request without allocating any per-client state.
func cookieMAC(secret []byte, clientAddr []byte) [sha256.Size]byte {
	var out [sha256.Size]byte
	mac := hmac.New(sha256.New, secret)
	mac.Write(clientAddr)
	mac.Sum(out[:0])
	return out
}

// GenerateCookie returns the stateless cookie for clientAddr under the
// host's rotating cookie secret.
func GenerateCookie(secret [32]byte, clientAddr []byte) []byte {
	mac := cookieMAC(secret[:], clientAddr)
	return mac[:]
}

// VerifyCookie reports whether cookie is the correct HMAC-SHA256 of
// clientAddr under secret, using a constant-time comparison to avoid
// leaking timing information to an off-path attacker probing cookies.
func VerifyCookie(secret [32]byte, clientAddr []byte, cookie []byte) bool {
	want := cookieMAC(secret[:], clientAddr)
	return subtle.ConstantTimeCompare(want[:], cookie) == 1
}

// GenerateCookieSecret draws a fresh 32-byte cookie secret from the host
// CSPRNG. Hosts rotate this periodically so old cookies stop verifying.
func GenerateCookieSecret() ([32]byte, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return secret, errcode.New(errcode.ResourceMemory, err)
	}
	return secret, nil
}
