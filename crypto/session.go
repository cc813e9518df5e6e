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

// Package crypto is the cryptographic handshake and per-session AEAD of
// spec.md §4.2(b)/§4.5: X25519 key agreement, a blake2s transcript hash in
// the manner of WireGuard's noise handshake, an HMAC-SHA256 stateless
// cookie bound to the client address, and a chacha20poly1305 session
// cipher with a nonce derived from the outer 24-bit sequence so the same
// key is never used to seal two datagrams under the same nonce.
package crypto

import (
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/sabouaram/relaynet/errcode"
)

// Session wraps one direction-independent chacha20poly1305 AEAD key and
// seals/opens datagrams keyed by the outer sequence number (§6). The
// 96-bit nonce is a per-session salt followed by that sequence; the salt
// is derived the same way on both ends from the handshake transcript
// (DeriveNonceSalt), so it is never put on the wire.
type Session struct {
	aead cipher.AEAD
	salt [8]byte // fixed per session, mixed into every nonce
}

// NewSession constructs a Session from a 32-byte key agreed during the
// handshake (§4.5). salt must be the same value on both ends of the
// session; DeriveNonceSalt computes it deterministically from the shared
// handshake transcript so neither side has to transmit it.
func NewSession(key [32]byte, salt [8]byte) (*Session, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, errcode.New(errcode.ApplicationInvalidArgument, err)
	}
	return &Session{aead: aead, salt: salt}, nil
}

func (s *Session) nonce(sequence uint32) [chacha20poly1305.NonceSize]byte {
	var n [chacha20poly1305.NonceSize]byte
	copy(n[:8], s.salt[:])
	n[8] = byte(sequence >> 24)
	n[9] = byte(sequence >> 16)
	n[10] = byte(sequence >> 8)
	n[11] = byte(sequence)
	return n
}

// Seal encrypts and authenticates plaintext (the, possibly compressed,
// command payload) under the outer header as associated data, appending
// the result (and TagSize-byte tag) to dst.
func (s *Session) Seal(dst, additionalData []byte, sequence uint32, plaintext []byte) []byte {
	n := s.nonce(sequence)
	return s.aead.Seal(dst, n[:], plaintext, additionalData)
}

// Open verifies and decrypts ciphertext, returning ProtocolMACFailure on
// any authentication failure (§4.2(b), §7).
func (s *Session) Open(dst, additionalData []byte, sequence uint32, ciphertext []byte) ([]byte, error) {
	n := s.nonce(sequence)
	out, err := s.aead.Open(dst, n[:], ciphertext, additionalData)
	if err != nil {
		return nil, errcode.New(errcode.ProtocolMACFailure, err)
	}
	return out, nil
}

// Overhead is the authentication tag size the session cipher appends.
func (s *Session) Overhead() int { return s.aead.Overhead() }
