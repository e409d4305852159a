// SPDX-License-Identifier: GPL-2.0-only

// Package shim is the Control Surface (C9): the public entry points other
// processes or an embedding binary call to stand up the usbmuxd
// impersonation, report readiness, and toggle native-library debug
// verbosity.
package shim

import (
	"os"
	"sync"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"howett.net/plist"

	"github.com/jkcoxson/minimuxer/heartbeat"
	"github.com/jkcoxson/minimuxer/idevice"
	"github.com/jkcoxson/minimuxer/muxer"
)

// muxSocketEnvVar is the environment variable name libimobiledevice-style
// clients consult to find their multiplexer socket.
const muxSocketEnvVar = "USBMUXD_SOCKET_ADDRESS"

// Shim is the process-wide control surface. The zero value is not usable;
// construct one with New.
type Shim struct {
	provider idevice.Provider
	locator  *idevice.Locator

	flags flags

	startMu  sync.Mutex
	logger   log.Logger
	pairing  muxer.PairingRecord
	registry *prometheus.Registry
}

// New builds a Shim around the given native-library capability provider.
// The caller supplies a Provider (normally idevice.NewNativeProvider("")) so
// tests can substitute a fake.
func New(provider idevice.Provider) *Shim {
	return &Shim{
		provider: provider,
		locator:  idevice.NewLocator(provider),
		logger:   log.NewNopLogger(),
		registry: prometheus.NewRegistry(),
	}
}

// Registry returns the Prometheus registry the shim publishes its mux
// server and worker metrics under, so an embedding binary can mount it
// behind its own /metrics endpoint.
func (s *Shim) Registry() *prometheus.Registry {
	return s.registry
}

// Start returns success at once if the shim is already started, without
// parsing pairingFileBytes. Otherwise it parses and validates the pairing
// record, installs a logger, then spawns the Mux Server and Heartbeat
// Worker as independent long-lived goroutines before publishing `started`.
func (s *Shim) Start(pairingFileBytes []byte, logPath string) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.flags.isStarted() {
		return nil
	}

	pairing, err := parsePairingFile(pairingFileBytes)
	if err != nil {
		if shimErr, ok := err.(*Error); ok {
			return shimErr
		}
		return newErr(ErrBadPairingFile, err)
	}

	s.logger = newFileLogger(logPath)
	s.pairing = pairing

	muxMetrics := muxer.NewMetrics(s.registry)
	server := muxer.NewServer(pairing, log.With(s.logger, "component", "muxer"), muxMetrics)
	go func() {
		if err := server.Run(); err != nil {
			level.Error(s.logger).Log("msg", "mux server exited", "err", err)
		}
	}()

	hbMetrics := heartbeat.NewMetrics(s.registry)
	hb := heartbeat.NewWorker(s.locator, log.With(s.logger, "component", "heartbeat"), &s.flags.lastHeartbeatOK, hbMetrics)
	go hb.Run()

	s.flags.setStarted(true)
	level.Info(s.logger).Log("msg", "minimuxer started", "udid", pairing.UDID)
	return nil
}

// Locator exposes the shim's device locator so an embedding binary can wire
// independent on-demand workers (the DDI Mounter, JIT Launcher, App & Profile
// Ops) against the same device-resolution policy without this package
// importing them back (those packages import shim for its error taxonomy).
func (s *Shim) Locator() *idevice.Locator {
	return s.locator
}

// Logger returns the logger installed by Start, namespaced with component
// for an embedding binary's own on-demand workers.
func (s *Shim) Logger(component string) log.Logger {
	return log.With(s.logger, "component", component)
}

// PublishDMGMounted sets the `dmg_mounted` readiness flag; an embedding
// binary passes this as the DDI Mounter's mounted callback.
func (s *Shim) PublishDMGMounted(v bool) {
	s.flags.setDMGMounted(v)
}

// SetDebug toggles verbose logging in the underlying native libraries by
// calling their debug-level setters. It also wraps the shim's own logger in
// a level filter: all levels when enabled, info and above when disabled.
func (s *Shim) SetDebug(enabled bool) {
	idevice.SetDebug(enabled)
	if enabled {
		s.logger = level.NewFilter(s.logger, level.AllowAll())
	} else {
		s.logger = level.NewFilter(s.logger, level.AllowInfo())
	}
}

// TargetMuxAddress points USBMUXD_SOCKET_ADDRESS at the Mux Server's
// loopback endpoint so in-process clients of the native library route
// through C2 instead of a real usbmuxd.
func TargetMuxAddress() error {
	if err := os.Setenv(muxSocketEnvVar, muxer.ListenAddress); err != nil {
		return errors.Wrap(err, "failed to set USBMUXD_SOCKET_ADDRESS")
	}
	return nil
}

// parsePairingFile decodes a pairing record plist and validates the UDID
// field required by spec.md §3.
func parsePairingFile(raw []byte) (muxer.PairingRecord, error) {
	var dict map[string]interface{}
	if err := plist.Unmarshal(raw, &dict); err != nil {
		return muxer.PairingRecord{}, errors.Wrap(err, "failed to parse pairing file plist")
	}
	udid, ok := dict["UDID"].(string)
	if !ok || udid == "" {
		return muxer.PairingRecord{}, newErr(ErrMissingUDID, nil)
	}
	return muxer.PairingRecord{UDID: udid, Raw: dict, RawXML: raw}, nil
}

func newFileLogger(logPath string) log.Logger {
	if logPath == "" {
		logger := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
		return log.With(logger, "ts", log.DefaultTimestampUTC)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		_ = level.Warn(logger).Log("msg", "failed to open log file, logging to stderr", "path", logPath, "err", err)
		return logger
	}
	logger := log.NewJSONLogger(log.NewSyncWriter(f))
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}
