// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
// #include <libimobiledevice/misagent.h>
// #include <plist/plist.h>
// #include <stdlib.h>
import "C"

import (
	"unsafe"

	"github.com/efficientgo/core/errors"
)

type nativeMisagent struct {
	client C.misagent_client_t
}

func (d *nativeDevice) NewMisagentClient(label string) (MisagentClient, error) {
	cLabel := C.CString(label)
	defer C.free(unsafe.Pointer(cLabel))

	var client C.misagent_client_t
	ret := C.misagent_client_start_service(d.handle, &client, cLabel)
	if ret != C.MISAGENT_E_SUCCESS {
		return nil, errors.Newf("misagent_client_start_service failed: %d", int(ret))
	}
	return &nativeMisagent{client: client}, nil
}

func (m *nativeMisagent) Install(profile []byte) error {
	if len(profile) == 0 {
		return errors.New("empty provisioning profile")
	}
	node := C.plist_new_data((*C.char)(unsafe.Pointer(&profile[0])), C.uint64_t(len(profile)))
	defer C.plist_free(node)

	ret := C.misagent_install(m.client, node)
	if ret != C.MISAGENT_E_SUCCESS {
		return errors.Newf("misagent_install failed: %d", int(ret))
	}
	return nil
}

func (m *nativeMisagent) Remove(uuid string) error {
	cUUID := C.CString(uuid)
	defer C.free(unsafe.Pointer(cUUID))

	ret := C.misagent_remove(m.client, cUUID)
	if ret != C.MISAGENT_E_SUCCESS {
		return errors.Newf("misagent_remove(%s) failed: %d", uuid, int(ret))
	}
	return nil
}

func (m *nativeMisagent) Copy() ([][]byte, error) {
	var profiles C.plist_t
	ret := C.misagent_copy_all(m.client, &profiles)
	if ret != C.MISAGENT_E_SUCCESS {
		return nil, errors.Newf("misagent_copy_all failed: %d", int(ret))
	}
	defer C.plist_free(profiles)

	count := int(C.plist_array_get_size(profiles))
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		item := C.plist_array_get_item(profiles, C.uint32_t(i))
		var cData *C.char
		var length C.uint64_t
		C.plist_get_data_val(item, &cData, &length)
		out = append(out, C.GoBytes(unsafe.Pointer(cData), C.int(length)))
		C.free(unsafe.Pointer(cData))
	}
	return out, nil
}

func (m *nativeMisagent) Close() {
	if m.client != nil {
		C.misagent_client_free(m.client)
		m.client = nil
	}
}
