// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamrelay",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency by method, route pattern and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamrelay",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "API requests currently being served.",
	})

	// Chunk uploads dominate request bodies; buckets span 1 KiB to 64 MiB.
	httpBodyBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamrelay",
		Subsystem: "http",
		Name:      "request_body_bytes",
		Help:      "Declared request body size by method and route pattern.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 9),
	}, []string{"method", "path"})
)

// Metrics records request latency, body size and concurrency. Paths are
// labelled by chi route pattern so chunk or id segments never become labels.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			began := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			route := routePattern(r)
			if r.ContentLength > 0 {
				httpBodyBytes.WithLabelValues(r.Method, route).Observe(float64(r.ContentLength))
			}
			httpRequestDuration.
				WithLabelValues(r.Method, route, strconv.Itoa(sw.code())).
				Observe(time.Since(began).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusWriter remembers the first status written. Zero means the handler
// never wrote, which net/http reports as 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) code() int {
	if sw.status == 0 {
		return http.StatusOK
	}
	return sw.status
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

// Hijack supports the status websocket behind this middleware.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T cannot be hijacked", sw.ResponseWriter)
	}
	sw.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }
