// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
// #cgo pkg-config: libimobiledevice-1.0
import "C"

import (
	"net"
	"time"
	"unsafe"

	"github.com/efficientgo/core/errors"
)

// nativeProvider is the default Provider, backed by libimobiledevice via
// cgo: one small struct wrapping a handle opened through a C library,
// with every subsequent capability opened as its own session.
type nativeProvider struct {
	udid string
}

// NewNativeProvider returns a Provider bound to the device with the given
// UDID, as read from the pairing record at start (spec.md §3 "Pairing
// Record"). An empty udid lets the native library pick whatever single
// device it currently sees attached.
func NewNativeProvider(udid string) Provider {
	return &nativeProvider{udid: udid}
}

// Reachable dials the device's lockdown port directly, once, within
// timeout; Locator.Reachable calls it with the 100ms probe timeout
// (spec.md §4.3).
func (p *nativeProvider) Reachable(timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", LockdownAddress, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (p *nativeProvider) Open() (Device, error) {
	var handle C.idevice_t

	var cUDID *C.char
	if p.udid != "" {
		cUDID = C.CString(p.udid)
		defer C.free(unsafe.Pointer(cUDID))
	}

	ret := C.idevice_new_with_options(&handle, cUDID, C.IDEVICE_LOOKUP_USBMUX|C.IDEVICE_LOOKUP_NETWORK)
	if ret != C.IDEVICE_E_SUCCESS {
		return nil, errors.Newf("idevice_new_with_options failed: %d", int(ret))
	}

	udid := p.udid
	if udid == "" {
		var cGotUDID *C.char
		if C.idevice_get_udid(handle, &cGotUDID) == C.IDEVICE_E_SUCCESS && cGotUDID != nil {
			udid = C.GoString(cGotUDID)
			C.free(unsafe.Pointer(cGotUDID))
		}
	}

	return &nativeDevice{handle: handle, udid: udid}, nil
}

// nativeDevice is a single opened idevice_t handle plus the UDID it was
// resolved to. Every New* method below opens its own independent session,
// matching spec.md §5's "each operation opens its own session" assumption.
type nativeDevice struct {
	handle C.idevice_t
	udid   string
}

func (d *nativeDevice) UDID() string { return d.udid }

func (d *nativeDevice) Close() {
	if d.handle != nil {
		C.idevice_free(d.handle)
		d.handle = nil
	}
}
