// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
// #include <libimobiledevice/lockdown.h>
// #include <plist/plist.h>
// #include <stdlib.h>
import "C"

import (
	"unsafe"

	"github.com/efficientgo/core/errors"
	"howett.net/plist"
)

type nativeLockdown struct {
	device C.idevice_t
	client C.lockdownd_client_t
}

func (d *nativeDevice) NewLockdownSession(label string) (LockdownSession, error) {
	cLabel := C.CString(label)
	defer C.free(unsafe.Pointer(cLabel))

	var client C.lockdownd_client_t
	ret := C.lockdownd_client_new_with_handshake(d.handle, &client, cLabel)
	if ret != C.LOCKDOWN_E_SUCCESS {
		return nil, errors.Newf("lockdownd_client_new_with_handshake failed: %d", int(ret))
	}
	return &nativeLockdown{device: d.handle, client: client}, nil
}

// StartPaired re-opens the lockdown session via the full pairing
// handshake, used by the personalized mount path (spec.md §4.6) when the
// first unpaired chip-id read fails.
func (l *nativeLockdown) StartPaired() error {
	var client C.lockdownd_client_t
	cLabel := C.CString("minimuxer-paired")
	defer C.free(unsafe.Pointer(cLabel))

	ret := C.lockdownd_client_new_with_handshake(l.device, &client, cLabel)
	if ret != C.LOCKDOWN_E_SUCCESS {
		return errors.Newf("lockdownd_client_new_with_handshake (paired) failed: %d", int(ret))
	}
	if l.client != nil {
		C.lockdownd_client_free(l.client)
	}
	l.client = client
	return nil
}

func (l *nativeLockdown) GetValue(domain, key string) (interface{}, error) {
	var cDomain *C.char
	if domain != "" {
		cDomain = C.CString(domain)
		defer C.free(unsafe.Pointer(cDomain))
	}
	cKey := C.CString(key)
	defer C.free(unsafe.Pointer(cKey))

	var node C.plist_t
	ret := C.lockdownd_get_value(l.client, cDomain, cKey, &node)
	if ret != C.LOCKDOWN_E_SUCCESS {
		return nil, errors.Newf("lockdownd_get_value(%s) failed: %d", key, int(ret))
	}
	defer C.plist_free(node)

	raw := plistNodeToXML(node)
	var value interface{}
	if err := plist.Unmarshal(raw, &value); err != nil {
		return nil, errors.Wrapf(err, "failed to decode lockdown value for %s", key)
	}
	return value, nil
}

func (l *nativeLockdown) Close() {
	if l.client != nil {
		C.lockdownd_client_free(l.client)
		l.client = nil
	}
}

// plistNodeToXML renders a native plist_t node to XML bytes so the rest of
// minimuxer-shim can stay on howett.net/plist for every plist value it
// touches instead of mixing in CGo-owned plist_t handles.
func plistNodeToXML(node C.plist_t) []byte {
	var cXML *C.char
	var length C.uint32_t
	C.plist_to_xml(node, &cXML, &length)
	defer C.free(unsafe.Pointer(cXML))
	return C.GoBytes(unsafe.Pointer(cXML), C.int(length))
}
