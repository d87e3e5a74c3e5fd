// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the Prometheus instruments the pipeline runner and
// connectors report against (SPEC_FULL.md §2's domain-stack wiring).
// A nil *Metrics is always safe to use: every method is a nil-receiver
// no-op, so instrumentation is opt-in without branching at every call
// site.
type Metrics struct {
	queueDepth       *prometheus.GaugeVec
	bytesWritten     prometheus.Counter
	chunkErrors      prometheus.Counter
	rangeResponses   prometheus.Counter
	writeWouldBlocks prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pipeline",
			Name:      "queue_depth_bytes",
			Help:      "Current content-byte count enqueued per stage.",
		}, []string{"stage"}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "bytes_written_total",
			Help:      "Total bytes written to sockets by connectors.",
		}),
		chunkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "chunk_errors_total",
			Help:      "Malformed inbound chunk headers.",
		}),
		rangeResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "range_responses_total",
			Help:      "Responses served as 206 Partial Content.",
		}),
		writeWouldBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "write_would_block_total",
			Help:      "Connector write attempts that returned EAGAIN/EWOULDBLOCK.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.queueDepth, m.bytesWritten, m.chunkErrors, m.rangeResponses, m.writeWouldBlocks)
	}
	return m
}

func (m *Metrics) setQueueDepth(stage string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(stage).Set(float64(n))
}

func (m *Metrics) addBytesWritten(n int64) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) incChunkErrors() {
	if m == nil {
		return
	}
	m.chunkErrors.Inc()
}

func (m *Metrics) incRangeResponses() {
	if m == nil {
		return
	}
	m.rangeResponses.Inc()
}

func (m *Metrics) incWriteWouldBlock() {
	if m == nil {
		return
	}
	m.writeWouldBlocks.Inc()
}
