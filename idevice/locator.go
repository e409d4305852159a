// SPDX-License-Identifier: GPL-2.0-only

package idevice

import (
	"sync/atomic"
	"time"

	"github.com/efficientgo/core/errors"
)

// LockdownAddress is the virtual interface address at which the device's
// lockdown service is reachable once the host-side tunnel is up
// (spec.md §6 "Device endpoint").
const LockdownAddress = "10.7.0.1:62078"

const (
	reachableProbeTimeout = 100 * time.Millisecond
	locatorRetryInterval  = 250 * time.Millisecond
	locatorRetryAttempts  = 20 // 20 * 250ms == 5s total budget
)

// Locator implements spec.md §4.3 "Device Locator" (C3) on top of a
// Provider. It is the only place in minimuxer-shim that retries for a
// device handle; every other caller either already has one or goes
// through Locator.FirstDevice.
type Locator struct {
	provider Provider
	everKnown atomic.Bool
}

// NewLocator builds a Locator around the given capability provider.
func NewLocator(provider Provider) *Locator {
	return &Locator{provider: provider}
}

// Reachable opens a TCP connection to the device's lockdown port with a
// 100ms timeout and reports whether it succeeded.
func (l *Locator) Reachable() bool {
	return l.provider.Reachable(reachableProbeTimeout)
}

// EverKnown reports whether FirstDevice has ever returned a handle
// successfully, i.e. the Readiness Oracle's `device_known` signal
// (spec.md §3).
func (l *Locator) EverKnown() bool {
	return l.everKnown.Load()
}

// FirstDevice asks the native library for a device handle, retrying at
// locatorRetryInterval for a total budget of locatorRetryAttempts
// attempts (5s) before giving up.
func (l *Locator) FirstDevice() (Device, error) {
	var lastErr error
	for attempt := 0; attempt < locatorRetryAttempts; attempt++ {
		d, err := l.provider.Open()
		if err == nil {
			l.everKnown.Store(true)
			return d, nil
		}
		lastErr = err
		time.Sleep(locatorRetryInterval)
	}
	return nil, errors.Wrap(lastErr, "no device after retry budget")
}
