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

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the optional Prometheus instrumentation surface of
// SPEC_FULL.md's domain-stack expansion. A nil *Metrics is safe to call
// through: every method is a nil-receiver no-op, so embedders who do not
// register a collector pay nothing beyond a pointer check.
type Metrics struct {
	DatagramsSent     prometheus.Counter
	DatagramsReceived prometheus.Counter
	BytesSent         prometheus.Counter
	BytesReceived     prometheus.Counter
	PeersConnected    prometheus.Gauge
	Retransmissions   prometheus.Counter
	HandshakeFailures prometheus.Counter
}

// NewMetrics builds and registers a Metrics set on reg, namespaced
// "relaynet".
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DatagramsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaynet", Name: "datagrams_sent_total",
		}),
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaynet", Name: "datagrams_received_total",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaynet", Name: "bytes_sent_total",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaynet", Name: "bytes_received_total",
		}),
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relaynet", Name: "peers_connected",
		}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaynet", Name: "retransmissions_total",
		}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaynet", Name: "handshake_failures_total",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.DatagramsSent, m.DatagramsReceived, m.BytesSent,
			m.BytesReceived, m.PeersConnected, m.Retransmissions, m.HandshakeFailures)
	}
	return m
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}
	m.DatagramsSent.Inc()
	m.BytesSent.Add(float64(n))
}

func (m *Metrics) received(n int) {
	if m == nil {
		return
	}
	m.DatagramsReceived.Inc()
	m.BytesReceived.Add(float64(n))
}

func (m *Metrics) retransmission() {
	if m == nil {
		return
	}
	m.Retransmissions.Inc()
}

func (m *Metrics) handshakeFailure() {
	if m == nil {
		return
	}
	m.HandshakeFailures.Inc()
}

func (m *Metrics) peerCountDelta(delta float64) {
	if m == nil {
		return
	}
	m.PeersConnected.Add(delta)
}
