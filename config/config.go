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

// Package config is the Go realization of spec.md §6's enumerated
// configuration options. Struct tags follow the teacher's tagging
// convention (database/gorm.Config: json/yaml/toml/mapstructure on every
// field) so the embedder may decode a HostConfig from any source via
// github.com/mitchellh/mapstructure, and struct-level rules are enforced
// with github.com/go-playground/validator/v10, the same validator the
// teacher's database and certificates packages use.
package config

import (
	"time"

	libval "github.com/go-playground/validator/v10"

	"github.com/sabouaram/relaynet/errcode"
)

// ChannelType is the Go name for spec.md §6's channel type codes.
type ChannelType uint8

const (
	ChannelReliableOrdered ChannelType = iota
	ChannelReliableUnordered
	ChannelUnreliableOrdered
	ChannelUnreliableUnordered
)

// SimulatorConfig configures the optional interference simulator of
// spec.md §4.1. A probability factor is a numerator over 2^32, per §6.
type SimulatorConfig struct {
	IncomingLossFactor   uint32 `json:"incoming-loss-factor" yaml:"incoming-loss-factor" toml:"incoming-loss-factor" mapstructure:"incoming-loss-factor"`
	OutgoingLossFactor   uint32 `json:"outgoing-loss-factor" yaml:"outgoing-loss-factor" toml:"outgoing-loss-factor" mapstructure:"outgoing-loss-factor"`
	IncomingDupFactor    uint32 `json:"incoming-duplication-factor" yaml:"incoming-duplication-factor" toml:"incoming-duplication-factor" mapstructure:"incoming-duplication-factor"`
	OutgoingDupFactor    uint32 `json:"outgoing-duplication-factor" yaml:"outgoing-duplication-factor" toml:"outgoing-duplication-factor" mapstructure:"outgoing-duplication-factor"`
	ReorderFactor        uint32 `json:"reorder-factor" yaml:"reorder-factor" toml:"reorder-factor" mapstructure:"reorder-factor"`
	OutOfOrderFactor     uint32 `json:"out-of-order-factor" yaml:"out-of-order-factor" toml:"out-of-order-factor" mapstructure:"out-of-order-factor"`
	BitFlipFactor        uint32 `json:"bit-flip-factor" yaml:"bit-flip-factor" toml:"bit-flip-factor" mapstructure:"bit-flip-factor"`
	BitFlipMin           uint8  `json:"bit-flip-min" yaml:"bit-flip-min" toml:"bit-flip-min" mapstructure:"bit-flip-min" validate:"gte=0,lte=64"`
	BitFlipMax           uint8  `json:"bit-flip-max" yaml:"bit-flip-max" toml:"bit-flip-max" mapstructure:"bit-flip-max" validate:"gte=0,lte=64,gtefield=BitFlipMin"`
	IncomingLatencyMS    uint32 `json:"incoming-latency-ms" yaml:"incoming-latency-ms" toml:"incoming-latency-ms" mapstructure:"incoming-latency-ms"`
	OutgoingLatencyMS    uint32 `json:"outgoing-latency-ms" yaml:"outgoing-latency-ms" toml:"outgoing-latency-ms" mapstructure:"outgoing-latency-ms"`
	JitterMS             uint32 `json:"jitter-ms" yaml:"jitter-ms" toml:"jitter-ms" mapstructure:"jitter-ms"`
}

// HostConfig configures one Host instance: the enumerated options of
// spec.md §6 plus the channel-type vector negotiated at `start`.
type HostConfig struct {
	// BindAddress is the local endpoint the host's network provider binds.
	BindAddress string `json:"bind-address" yaml:"bind-address" toml:"bind-address" mapstructure:"bind-address" validate:"required"`

	// Channels is the channel-type vector; its length is the channel count
	// every peer must present verbatim during the handshake (§4.5).
	Channels []ChannelType `json:"channels" yaml:"channels" toml:"channels" mapstructure:"channels" validate:"required,min=1,max=255"`

	// MaxChannelCount bounds how many channels a single peer may request.
	MaxChannelCount uint8 `json:"max-channel-count" yaml:"max-channel-count" toml:"max-channel-count" mapstructure:"max-channel-count" validate:"gte=1"`

	// MTUCeiling is the largest datagram size the codec will ever emit.
	MTUCeiling uint16 `json:"mtu-ceiling" yaml:"mtu-ceiling" toml:"mtu-ceiling" mapstructure:"mtu-ceiling" validate:"gte=512,lte=65507"`

	// MTUFloor is the smallest datagram size MTU discovery will fall back to.
	MTUFloor uint16 `json:"mtu-floor" yaml:"mtu-floor" toml:"mtu-floor" mapstructure:"mtu-floor" validate:"gte=508"`

	// RetransmissionCap is the maximum retransmission count before a peer
	// transitions to the zombie state (§4.4).
	RetransmissionCap uint8 `json:"retransmission-cap" yaml:"retransmission-cap" toml:"retransmission-cap" mapstructure:"retransmission-cap" validate:"gte=1"`

	// RetransmissionTimeoutCap bounds the exponential-backoff RTO.
	RetransmissionTimeoutCap time.Duration `json:"retransmission-timeout-cap" yaml:"retransmission-timeout-cap" toml:"retransmission-timeout-cap" mapstructure:"retransmission-timeout-cap"`

	// PingInterval is the minimum spacing between liveness pings (§4.5).
	PingInterval time.Duration `json:"ping-interval" yaml:"ping-interval" toml:"ping-interval" mapstructure:"ping-interval"`

	// PeerTimeout is the silence interval after which a peer becomes a
	// zombie; spec.md §4.5 default is 30s.
	PeerTimeout time.Duration `json:"peer-timeout" yaml:"peer-timeout" toml:"peer-timeout" mapstructure:"peer-timeout"`

	// PeerTableSize bounds the host's peer slab (§3's resource discipline).
	PeerTableSize int `json:"peer-table-size" yaml:"peer-table-size" toml:"peer-table-size" mapstructure:"peer-table-size" validate:"gte=1"`

	// MaxDecompressedSize bounds the codec's decompression (§4.2(d)).
	MaxDecompressedSize uint32 `json:"max-decompressed-size" yaml:"max-decompressed-size" toml:"max-decompressed-size" mapstructure:"max-decompressed-size"`

	// RequireCookie forces the server to demand the stateless cookie
	// round-trip of §4.5 before allocating any peer state.
	RequireCookie bool `json:"require-cookie" yaml:"require-cookie" toml:"require-cookie" mapstructure:"require-cookie"`

	// Simulator is nil when no interference should be injected.
	Simulator *SimulatorConfig `json:"simulator" yaml:"simulator" toml:"simulator" mapstructure:"simulator"`
}

// Default returns sane defaults matching spec.md's stated defaults (30s
// peer timeout, a 508-1400 MTU search range) and the teacher's convention
// of a `Default()` constructor per config struct.
func Default() *HostConfig {
	return &HostConfig{
		Channels:                 []ChannelType{ChannelReliableOrdered},
		MaxChannelCount:          32,
		MTUCeiling:               1400,
		MTUFloor:                 508,
		RetransmissionCap:        16,
		RetransmissionTimeoutCap: 3 * time.Second,
		PingInterval:             500 * time.Millisecond,
		PeerTimeout:              30 * time.Second,
		PeerTableSize:            4096,
		MaxDecompressedSize:      1 << 20,
		RequireCookie:            true,
	}
}

var validate = libval.New()

// Validate runs struct-level validation and the cross-field invariants
// spec.md names explicitly (MTU floor below ceiling, channel count within
// the configured maximum).
func (c *HostConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.MTUFloor > c.MTUCeiling {
		return errcode.New(errcode.ApplicationInvalidArgument)
	}
	if len(c.Channels) > int(c.MaxChannelCount) {
		return errcode.New(errcode.ResourceChannelCountExceeded)
	}
	return nil
}
