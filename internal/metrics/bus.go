// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusDroppedTotal counts status events the bus could not deliver to a
// subscriber (slow websocket clients, closed subscriptions).
var BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "streamrelay",
	Subsystem: "bus",
	Name:      "dropped_total",
	Help:      "Status events dropped by the in-memory bus, by topic and reason.",
}, []string{"topic", "reason"})

// IncBusDropReason counts one drop. Blank labels are recorded as "unknown".
func IncBusDropReason(topic, reason string) {
	BusDroppedTotal.WithLabelValues(orUnknown(topic), orUnknown(reason)).Inc()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
