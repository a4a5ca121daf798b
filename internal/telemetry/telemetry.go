// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry provides opt-in, low-overhead instrumentation for the
// gradients accumulator. It is safe to call from hot paths: when disabled,
// all public record functions are no-ops.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the behavior of the telemetry module.
//
// MetricsAddr, when non-empty, starts a dedicated HTTP server that serves
// /metrics. If you already expose Prometheus elsewhere, leave it empty and
// register promhttp yourself.
type Config struct {
	Enabled     bool
	MetricsAddr string // e.g., ":9090". Empty to disable the standalone endpoint
}

var (
	modEnabled atomic.Bool

	broadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradacc_broadcasts_total",
		Help: "Total compressed payloads dispatched to all worker mailboxes",
	})
	payloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gradacc_payload_bytes",
		Help:    "Distribution of compressed payload sizes in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 4, 12),
	})
	barrierTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradacc_barrier_timeouts_total",
		Help: "Soft barrier waits that elapsed without a full generation (benign)",
	})
	capacityErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradacc_capacity_errors_total",
		Help: "Dispatch attempts rejected because a payload exceeded the per-slot arena share",
	})
	appliedPayloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradacc_applied_payloads_total",
		Help: "Total payloads drained and decode-accumulated by consumers",
	})
	applyStepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradacc_apply_steps_total",
		Help: "Total optimizer step invocations triggered by non-empty drains",
	})
)

func init() {
	// Register eagerly. If no Prometheus endpoint is exposed, the
	// registration is harmless.
	prometheus.MustRegister(broadcastsTotal, payloadBytes, barrierTimeoutsTotal,
		capacityErrorsTotal, appliedPayloadsTotal, applyStepsTotal)
}

// Enable configures the module. Safe to call multiple times; subsequent calls
// replace the config.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether telemetry is active.
func Enabled() bool { return modEnabled.Load() }

// RecordBroadcast records one payload fanned out to every mailbox.
func RecordBroadcast(payloadSize int) {
	if !modEnabled.Load() {
		return
	}
	broadcastsTotal.Inc()
	payloadBytes.Observe(float64(payloadSize))
}

// RecordBarrierTimeout records a benign soft-barrier timeout.
func RecordBarrierTimeout() {
	if !modEnabled.Load() {
		return
	}
	barrierTimeoutsTotal.Inc()
}

// RecordCapacityError records a dispatch rejected for arena capacity.
func RecordCapacityError() {
	if !modEnabled.Load() {
		return
	}
	capacityErrorsTotal.Inc()
}

// RecordApply records a drain of n payloads and, when n > 0, the resulting
// step invocation.
func RecordApply(n int) {
	if !modEnabled.Load() || n <= 0 {
		return
	}
	appliedPayloadsTotal.Add(float64(n))
	applyStepsTotal.Inc()
}

// startMetricsEndpoint exposes /metrics on the given addr in a background
// goroutine. Best-effort: duplicate addrs are not deduplicated.
func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
