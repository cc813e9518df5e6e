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

// Package address is the protocol-agnostic endpoint value type of spec.md
// §3: family, a 16-byte host (IPv4 addresses are IPv4-mapped per §6), a
// 16-bit port and a scope id for link-local IPv6.
package address

import (
	"fmt"
	"net"
)

type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// Address is a value type: comparable, hashable, safe as a map key.
type Address struct {
	Family  Family
	Host    [16]byte
	Port    uint16
	ScopeID uint32
}

// FromUDPAddr converts a stdlib *net.UDPAddr into an Address.
func FromUDPAddr(a *net.UDPAddr) Address {
	var out Address
	ip4 := a.IP.To4()
	if ip4 != nil {
		out.Family = FamilyV4
		copy(out.Host[12:], ip4)
		out.Host[10] = 0xff
		out.Host[11] = 0xff
	} else {
		out.Family = FamilyV6
		ip16 := a.IP.To16()
		copy(out.Host[:], ip16)
	}
	out.Port = uint16(a.Port)
	if a.Zone != "" {
		if iface, err := net.InterfaceByName(a.Zone); err == nil {
			out.ScopeID = uint32(iface.Index)
		}
	}
	return out
}

// UDPAddr converts the Address back into a *net.UDPAddr usable by the
// network provider.
func (a Address) UDPAddr() *net.UDPAddr {
	if a.Family == FamilyV4 {
		return &net.UDPAddr{IP: net.IPv4(a.Host[12], a.Host[13], a.Host[14], a.Host[15]), Port: int(a.Port)}
	}
	ip := make(net.IP, 16)
	copy(ip, a.Host[:])
	u := &net.UDPAddr{IP: ip, Port: int(a.Port)}
	if a.ScopeID != 0 {
		if iface, err := net.InterfaceByIndex(int(a.ScopeID)); err == nil {
			u.Zone = iface.Name
		}
	}
	return u
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.UDPAddr().IP.String(), a.Port)
}

// Resolve looks up a hostname (or literal address) and returns its Address,
// grounding spec.md §4.1's `resolve(hostname) → address` operation.
func Resolve(hostname string) (Address, error) {
	a, err := net.ResolveUDPAddr("udp", hostname)
	if err != nil {
		return Address{}, err
	}
	return FromUDPAddr(a), nil
}

// EnumerateInterfaces grounds spec.md §4.1's `enumerate_interfaces(filter)`.
// The filter, when non-nil, is called once per candidate address; addresses
// for which it returns false are excluded.
func EnumerateInterfaces(filter func(Address) bool) ([]Address, error) {
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	out := make([]Address, 0, len(ifaces))
	for _, ifa := range ifaces {
		ipNet, ok := ifa.(*net.IPNet)
		if !ok {
			continue
		}
		u := &net.UDPAddr{IP: ipNet.IP}
		a := FromUDPAddr(u)
		if filter == nil || filter(a) {
			out = append(out, a)
		}
	}
	return out, nil
}
