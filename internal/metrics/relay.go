// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionStartTotal tracks the outcome of start requests.
	SessionStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_session_start_total",
		Help: "Total number of relay session start attempts by result",
	}, []string{"result"})

	// SessionEndTotal tracks how sessions ended (stopped, failed, replaced).
	SessionEndTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_session_end_total",
		Help: "Total number of relay sessions ended by outcome",
	}, []string{"outcome"})

	// SessionStartupLatency is the time from start request to transcoder confirmation.
	SessionStartupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamrelay_session_startup_latency_seconds",
		Help:    "Time from start request to transcoder confirmation",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
	})

	// SessionState is 1 for the current controller state and 0 otherwise.
	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamrelay_session_state",
		Help: "Current relay session state (1 = current)",
	}, []string{"state"})

	// ChunksPushedTotal counts chunks accepted into the ingress buffer.
	ChunksPushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamrelay_chunks_pushed_total",
		Help: "Total media chunks accepted into the ingress buffer",
	})

	// BytesPushedTotal counts bytes accepted into the ingress buffer.
	BytesPushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamrelay_bytes_pushed_total",
		Help: "Total media bytes accepted into the ingress buffer",
	})

	// ChunksDroppedTotal counts chunks that were not enqueued.
	ChunksDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_chunks_dropped_total",
		Help: "Total media chunks dropped by reason (no_session, ended, aborted)",
	}, []string{"reason"})

	// IngressQueuedBytes is the number of bytes waiting for the transcoder.
	IngressQueuedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamrelay_ingress_queued_bytes",
		Help: "Bytes buffered between the producer and the transcoder stdin",
	})

	// IngressHighWaterTotal counts crossings of the configured high-water mark.
	IngressHighWaterTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamrelay_ingress_high_water_total",
		Help: "Times the ingress buffer grew past its high-water mark",
	})
)

var sessionStates = []string{"idle", "starting", "active", "stopping", "failed"}

// SetSessionState flips the state gauge so exactly one state reads 1.
func SetSessionState(state string) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		SessionState.WithLabelValues(s).Set(v)
	}
}

// ObserveSessionStartup records the startup latency.
func ObserveSessionStartup(d time.Duration) {
	SessionStartupLatency.Observe(d.Seconds())
}
