// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetSessionState_ExactlyOneCurrent(t *testing.T) {
	SetSessionState("active")

	for _, s := range sessionStates {
		want := 0.0
		if s == "active" {
			want = 1
		}
		assert.Equal(t, want, testutil.ToFloat64(SessionState.WithLabelValues(s)), s)
	}

	SetSessionState("idle")
	assert.Equal(t, 0.0, testutil.ToFloat64(SessionState.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(SessionState.WithLabelValues("idle")))
}

func TestIncBusDropReason_DefaultsLabels(t *testing.T) {
	before := testutil.ToFloat64(BusDroppedTotal.WithLabelValues("unknown", "unknown"))
	IncBusDropReason("", "")
	assert.Equal(t, before+1, testutil.ToFloat64(BusDroppedTotal.WithLabelValues("unknown", "unknown")))
}

func TestObserveSessionStartup(t *testing.T) {
	before := testutil.CollectAndCount(SessionStartupLatency)
	ObserveSessionStartup(1500 * time.Millisecond)
	// A histogram is a single metric regardless of observations.
	assert.Equal(t, before, testutil.CollectAndCount(SessionStartupLatency))
	assert.Equal(t, 1, before)
}

func TestIncProcSignal(t *testing.T) {
	before := testutil.ToFloat64(procSignalTotal.WithLabelValues("SIGINT", "sent"))
	IncProcSignal("SIGINT", "sent")
	assert.Equal(t, before+1, testutil.ToFloat64(procSignalTotal.WithLabelValues("SIGINT", "sent")))
}
