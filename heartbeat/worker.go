// SPDX-License-Identifier: GPL-2.0-only

// Package heartbeat implements the Heartbeat Worker (C5): a background loop
// that keeps a device's lockdown session alive by trading heartbeat plists
// with it, publishing whether the last round-trip succeeded.
package heartbeat

import (
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkcoxson/minimuxer/idevice"
)

const (
	receiveTimeout = 12 * time.Second
	retryInterval  = 100 * time.Millisecond
	serviceLabel   = "minimuxer-heartbeat"
)

// Metrics holds the Prometheus collectors the worker updates; callers
// construct it once and register it with their own registry.
type Metrics struct {
	RoundTrips      *prometheus.CounterVec
	LastSuccessUnix prometheus.Gauge
}

// NewMetrics builds a Metrics set registered under reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoundTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minimuxer_heartbeat_roundtrips_total",
			Help: "Heartbeat polo/marco round-trips, by outcome.",
		}, []string{"outcome"}),
		LastSuccessUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minimuxer_heartbeat_last_success_unix",
			Help: "Unix timestamp of the last successful heartbeat round-trip.",
		}),
	}
	reg.MustRegister(m.RoundTrips, m.LastSuccessUnix)
	return m
}

// Worker drives the heartbeat loop against whatever device idevice.Locator
// currently resolves to, publishing success/failure into ok.
type Worker struct {
	locator *idevice.Locator
	logger  log.Logger
	ok      *atomic.Bool
	metrics *Metrics
}

// NewWorker builds a Worker that writes its last-success state into ok. ok
// is owned by the caller (normally shim.Shim's flags) so Ready() can read
// it without depending on this package. metrics may be nil, in which case
// no Prometheus collectors are updated.
func NewWorker(locator *idevice.Locator, logger log.Logger, ok *atomic.Bool, metrics *Metrics) *Worker {
	return &Worker{locator: locator, logger: logger, ok: ok, metrics: metrics}
}

func (w *Worker) observe(success bool) {
	if w.metrics == nil {
		return
	}
	if success {
		w.metrics.RoundTrips.WithLabelValues("success").Inc()
		w.metrics.LastSuccessUnix.SetToCurrentTime()
		return
	}
	w.metrics.RoundTrips.WithLabelValues("failure").Inc()
}

// Run never returns; cancellation is by process exit, per spec.md §4.5.
func (w *Worker) Run() {
	for {
		w.ok.Store(false)

		device, err := w.locator.FirstDevice()
		if err != nil {
			level.Debug(w.logger).Log("msg", "no device for heartbeat, retrying", "err", err)
			time.Sleep(retryInterval)
			continue
		}

		client, err := device.NewHeartbeatClient(serviceLabel)
		if err != nil {
			level.Debug(w.logger).Log("msg", "failed to open heartbeat session, retrying", "err", err)
			device.Close()
			time.Sleep(retryInterval)
			continue
		}

		w.pump(device, client)
	}
}

// pump runs the inner receive/echo loop until a send or receive fails, then
// closes the session and returns to let Run re-acquire the device.
func (w *Worker) pump(device idevice.Device, client idevice.HeartbeatClient) {
	defer client.Close()
	defer device.Close()

	for {
		polo, err := client.Receive(receiveTimeout)
		if err != nil {
			w.ok.Store(false)
			w.observe(false)
			level.Debug(w.logger).Log("msg", "heartbeat receive failed", "err", err)
			return
		}

		if err := client.Send(polo); err != nil {
			w.ok.Store(false)
			w.observe(false)
			level.Debug(w.logger).Log("msg", "heartbeat echo failed", "err", err)
			return
		}

		w.ok.Store(true)
		w.observe(true)
	}
}
