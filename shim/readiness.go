// SPDX-License-Identifier: GPL-2.0-only

package shim

import "time"

// readinessProbeTimeout records the 100ms bound of the live reachability
// probe Ready() performs against the device's lockdown port. The probe
// itself goes through Locator.Reachable, which applies idevice's own
// 100ms timeout; this constant is not referenced.
const readinessProbeTimeout = 100 * time.Millisecond

// Readiness is a snapshot of the five independent boolean signals described
// in spec.md §3 "Readiness State", sampled independently per call.
type Readiness struct {
	DeviceReachable bool
	DeviceKnown     bool
	LastHeartbeatOK bool
	DMGMounted      bool
	Started         bool
}

// Ready reports the logical AND of DeviceReachable, DeviceKnown,
// LastHeartbeatOK, and Started. DMGMounted is intentionally excluded from
// the gate: it is tracked and logged, but the DDI mount is not a
// precondition for the shim to be considered usable (spec.md §4.4).
func (r Readiness) Ready() bool {
	return r.DeviceReachable && r.DeviceKnown && r.LastHeartbeatOK && r.Started
}

// snapshot evaluates current Readiness for s, probing device reachability
// live and reading the process-wide flags.
func (s *Shim) snapshot() Readiness {
	return Readiness{
		DeviceReachable: s.locator.Reachable(),
		DeviceKnown:     s.locator.EverKnown(),
		LastHeartbeatOK: s.flags.isLastHeartbeatOK(),
		DMGMounted:      s.flags.isDMGMounted(),
		Started:         s.flags.isStarted(),
	}
}

// Ready implements the C4 Readiness Oracle's public entry point.
func (s *Shim) Ready() Readiness {
	return s.snapshot()
}
