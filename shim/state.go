// SPDX-License-Identifier: GPL-2.0-only

package shim

import "sync/atomic"

// flags is the process-wide set of published worker-liveness signals
// described in spec.md §3 "Process-wide Flags". Each flag is written by
// exactly one owning goroutine and read by any number of others; they are
// advisories, never synchronization primitives for shared data.
type flags struct {
	started          atomic.Bool
	dmgMounted       atomic.Bool
	lastHeartbeatOK  atomic.Bool
}

func (f *flags) setStarted(v bool)         { f.started.Store(v) }
func (f *flags) isStarted() bool           { return f.started.Load() }
func (f *flags) setDMGMounted(v bool)      { f.dmgMounted.Store(v) }
func (f *flags) isDMGMounted() bool        { return f.dmgMounted.Load() }
func (f *flags) setLastHeartbeatOK(v bool) { f.lastHeartbeatOK.Store(v) }
func (f *flags) isLastHeartbeatOK() bool   { return f.lastHeartbeatOK.Load() }
