// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
import "C"

// SetDebug toggles verbose logging in libimobiledevice itself by flipping
// the native library's own debug-level setter. It does not touch
// minimuxer-shim's own logger; shim.SetDebug adjusts that separately.
func SetDebug(enabled bool) {
	if enabled {
		C.idevice_set_debug_level(1)
		return
	}
	C.idevice_set_debug_level(0)
}
