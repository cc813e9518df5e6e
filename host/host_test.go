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

package host_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/relaynet/config"
	"github.com/sabouaram/relaynet/host"
	"github.com/sabouaram/relaynet/network"
)

func newTestConfig() *config.HostConfig {
	cfg := config.Default()
	cfg.BindAddress = "virtual"
	cfg.Channels = []config.ChannelType{config.ChannelReliableOrdered, config.ChannelUnreliableOrdered}
	cfg.RequireCookie = false
	cfg.PingInterval = time.Hour // quiet by default; scenarios that care override
	return cfg
}

func newTestHost(sw *network.Switch, cfg *config.HostConfig) *host.Host {
	provider := sw.Bind()
	h, err := host.Create(cfg, provider, []byte("test-responder"), nil, nil)
	Expect(err).ToNot(HaveOccurred())
	Expect(h.Start()).To(Succeed())
	return h
}

// drainUntil pumps Service on both hosts until pred reports true on one of
// the events it sees, or the deadline passes.
func drainUntil(hosts []*host.Host, deadline time.Time, pred func(h *host.Host, ev host.Event) bool) (host.Event, *host.Host, bool) {
	for time.Now().Before(deadline) {
		for _, h := range hosts {
			ev, ok, err := h.Service(5 * time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			if ok && pred(h, ev) {
				return ev, h, true
			}
		}
	}
	return host.Event{}, nil, false
}

// connectAndApprove drives client through all three of the server's gates
// (accepting every token unconditionally) and returns the server's handle
// to the now-connected peer.
func connectAndApprove(client, server *host.Host, connToken, authToken []byte) host.Handle {
	_, err := client.Connect(server.LocalAddr(), connToken, authToken)
	Expect(err).ToNot(HaveOccurred())

	deadline := time.Now().Add(2 * time.Second)
	hosts := []*host.Host{client, server}

	ev, _, found := drainUntil(hosts, deadline, func(h *host.Host, ev host.Event) bool {
		return ev.Kind == host.EventPeerCheckConnectionToken
	})
	Expect(found).To(BeTrue())
	serverHandle := ev.Peer
	Expect(server.AcceptConnectionToken(serverHandle)).To(Succeed())

	_, _, found = drainUntil(hosts, deadline, func(h *host.Host, ev host.Event) bool {
		return ev.Kind == host.EventPeerCheckAuthenticationToken
	})
	Expect(found).To(BeTrue())
	Expect(server.AcceptAuthenticationToken(serverHandle)).To(Succeed())

	_, _, found = drainUntil(hosts, deadline, func(h *host.Host, ev host.Event) bool {
		return ev.Kind == host.EventPeerApproval
	})
	Expect(found).To(BeTrue())
	Expect(server.ApproveConnection(serverHandle)).To(Succeed())

	_, _, found = drainUntil(hosts, deadline, func(h *host.Host, ev host.Event) bool {
		return ev.Kind == host.EventPeerConnect && h == client
	})
	Expect(found).To(BeTrue())

	return serverHandle
}

var _ = Describe("connection handshake", func() {
	var sw *network.Switch
	var client, server *host.Host

	BeforeEach(func() {
		sw = network.NewSwitch()
		client = newTestHost(sw, newTestConfig())
		server = newTestHost(sw, newTestConfig())
	})

	It("completes through all three gates and exchanges an in-order message on channel 0", func() {
		_, err := client.Connect(server.LocalAddr(), []byte("conn-token"), []byte("auth-token"))
		Expect(err).ToNot(HaveOccurred())

		deadline := time.Now().Add(2 * time.Second)

		// first gate: the server sees the candidate and accepts its
		// connection token.
		ev, h, found := drainUntil([]*host.Host{client, server}, deadline, func(h *host.Host, ev host.Event) bool {
			return ev.Kind == host.EventPeerCheckConnectionToken
		})
		Expect(found).To(BeTrue())
		Expect(h).To(Equal(server))
		serverHandle := ev.Peer
		tok, err := server.PendingConnectionToken(serverHandle)
		Expect(err).ToNot(HaveOccurred())
		Expect(tok).To(Equal([]byte("conn-token")))
		Expect(server.AcceptConnectionToken(serverHandle)).To(Succeed())

		// second gate: the server sees the candidate's authentication token.
		ev, h, found = drainUntil([]*host.Host{client, server}, deadline, func(h *host.Host, ev host.Event) bool {
			return ev.Kind == host.EventPeerCheckAuthenticationToken
		})
		Expect(found).To(BeTrue())
		Expect(h).To(Equal(server))
		auth, err := server.PendingAuthenticationToken(serverHandle)
		Expect(err).ToNot(HaveOccurred())
		Expect(auth).To(Equal([]byte("auth-token")))
		Expect(server.AcceptAuthenticationToken(serverHandle)).To(Succeed())

		// third gate: final application approval.
		ev, h, found = drainUntil([]*host.Host{client, server}, deadline, func(h *host.Host, ev host.Event) bool {
			return ev.Kind == host.EventPeerApproval
		})
		Expect(found).To(BeTrue())
		Expect(h).To(Equal(server))
		Expect(server.ApproveConnection(serverHandle)).To(Succeed())

		// both sides eventually see peer_connect.
		_, _, found = drainUntil([]*host.Host{client, server}, deadline, func(h *host.Host, ev host.Event) bool {
			return ev.Kind == host.EventPeerConnect && h == client
		})
		Expect(found).To(BeTrue())

		messages := []string{
			"Hello world!",
			"Hello another world!",
			"Hello world in an another world! Yet another hello world with an yet another hello world!",
			"Hello another world in an world! Yet another hello world with an yet another hello world!",
		}
		for _, m := range messages {
			Expect(server.Send(serverHandle, 0, []byte(m))).To(Succeed())
		}

		var received []string
		recvDeadline := time.Now().Add(3 * time.Second)
		for len(received) < len(messages) && time.Now().Before(recvDeadline) {
			ev, ok, err := client.Service(5 * time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			if ok && ev.Kind == host.EventPeerReceive && ev.Channel == 0 {
				received = append(received, string(ev.Data))
			}
		}
		Expect(received).To(Equal(messages))
	})

	It("surfaces peer_denial to the client when the server rejects the connection token", func() {
		_, err := client.Connect(server.LocalAddr(), []byte("bad-token"), nil)
		Expect(err).ToNot(HaveOccurred())

		deadline := time.Now().Add(2 * time.Second)
		ev, h, found := drainUntil([]*host.Host{client, server}, deadline, func(h *host.Host, ev host.Event) bool {
			return ev.Kind == host.EventPeerCheckConnectionToken
		})
		Expect(found).To(BeTrue())
		Expect(h).To(Equal(server))
		Expect(server.RejectConnectionToken(ev.Peer, 42)).To(Succeed())

		ev, h, found = drainUntil([]*host.Host{client, server}, time.Now().Add(5*time.Second), func(h *host.Host, ev host.Event) bool {
			return ev.Kind == host.EventPeerDenial
		})
		Expect(found).To(BeTrue())
		Expect(h).To(Equal(client))
		Expect(ev.Reason).To(Equal(uint8(42)))

		// the server must never have emitted peer_connect for this candidate.
		noConnect := true
		scan := time.Now().Add(200 * time.Millisecond)
		for time.Now().Before(scan) {
			sev, ok, _ := server.Service(5 * time.Millisecond)
			if ok && sev.Kind == host.EventPeerConnect {
				noConnect = false
			}
		}
		Expect(noConnect).To(BeTrue())
	})

	It("delivers a large fragmented message byte-for-byte", func() {
		serverHandle := connectAndApprove(client, server, []byte("conn-token"), []byte("auth-token"))

		payload := make([]byte, 65536)
		for i := range payload {
			payload[i] = byte(i)
		}
		Expect(client.Send(serverHandle, 0, payload)).To(Succeed())

		deadline := time.Now().Add(10 * time.Second)
		found := false
		for time.Now().Before(deadline) && !found {
			ev, ok, err := server.Service(5 * time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			if ok && ev.Kind == host.EventPeerReceive && ev.Channel == 0 {
				Expect(ev.Data).To(Equal(payload))
				found = true
			}
			_, _, _ = client.Service(5 * time.Millisecond)
		}
		Expect(found).To(BeTrue())
	})

	It("delivers a strictly increasing subsequence on an unreliable-ordered channel despite reordering", func() {
		serverHandle := connectAndApprove(client, server, nil, nil)

		for seq := 100; seq >= 1; seq-- { // send in reverse to force reordering
			Expect(client.Send(serverHandle, 1, []byte{byte(seq)})).To(Succeed())
		}

		var delivered []byte
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			ev, ok, err := server.Service(5 * time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			if ok && ev.Kind == host.EventPeerReceive && ev.Channel == 1 {
				delivered = append(delivered, ev.Data[0])
			}
		}

		Expect(len(delivered)).To(BeNumerically(">", 0))
		for i := 1; i < len(delivered); i++ {
			Expect(delivered[i]).To(BeNumerically(">", delivered[i-1]))
		}
	})
})
