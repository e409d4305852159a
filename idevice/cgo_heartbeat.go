// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
// #include <libimobiledevice/heartbeat.h>
// #include <plist/plist.h>
// #include <stdlib.h>
import "C"

import (
	"time"
	"unsafe"

	"github.com/efficientgo/core/errors"
	"howett.net/plist"
)

type nativeHeartbeat struct {
	client C.heartbeat_client_t
}

func (d *nativeDevice) NewHeartbeatClient(label string) (HeartbeatClient, error) {
	cLabel := C.CString(label)
	defer C.free(unsafe.Pointer(cLabel))

	var client C.heartbeat_client_t
	ret := C.heartbeat_client_start_service(d.handle, &client, cLabel)
	if ret != C.HEARTBEAT_E_SUCCESS {
		return nil, errors.Newf("heartbeat_client_start_service failed: %d", int(ret))
	}
	return &nativeHeartbeat{client: client}, nil
}

func (h *nativeHeartbeat) Receive(timeout time.Duration) (interface{}, error) {
	var node C.plist_t
	ret := C.heartbeat_receive_with_timeout(h.client, &node, C.uint32_t(timeout.Milliseconds()))
	if ret != C.HEARTBEAT_E_SUCCESS {
		return nil, errors.Newf("heartbeat_receive_with_timeout failed: %d", int(ret))
	}
	defer C.plist_free(node)

	raw := plistNodeToXML(node)
	var decoded interface{}
	if err := plist.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode heartbeat polo")
	}
	return decoded, nil
}

func (h *nativeHeartbeat) Send(marco interface{}) error {
	node, err := plistToNode(marco)
	if err != nil {
		return errors.Wrap(err, "failed to build heartbeat marco")
	}
	defer C.plist_free(node)

	ret := C.heartbeat_send(h.client, node)
	if ret != C.HEARTBEAT_E_SUCCESS {
		return errors.Newf("heartbeat_send failed: %d", int(ret))
	}
	return nil
}

func (h *nativeHeartbeat) Close() {
	if h.client != nil {
		C.heartbeat_client_free(h.client)
		h.client = nil
	}
}
