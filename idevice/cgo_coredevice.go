// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
// #include <libimobiledevice/coredevice.h>
// #include <libimobiledevice/lockdown.h>
// #include <stdlib.h>
import "C"

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"unsafe"

	"github.com/efficientgo/core/errors"
	"howett.net/plist"
)

// nativeTunnel wraps the CoreDevice tunnel used by the iOS 17+ mount and
// debug paths. Starting and stopping the tunnel and service discovery go
// through cgo; RemoteXPC framing is plain TCP over the tunnel interface
// and needs no cgo call.
type nativeTunnel struct {
	device  C.idevice_t
	handle  C.coredevice_tunnel_t
	address string
}

func (d *nativeDevice) OpenCoreDeviceTunnel() (Tunnel, error) {
	var handle C.coredevice_tunnel_t
	ret := C.coredevice_tunnel_start(d.handle, &handle)
	if ret != C.COREDEVICE_E_SUCCESS {
		return nil, errors.Newf("coredevice_tunnel_start failed: %d", int(ret))
	}

	var cAddress *C.char
	C.coredevice_tunnel_get_address(handle, &cAddress)
	defer C.free(unsafe.Pointer(cAddress))

	return &nativeTunnel{device: d.handle, handle: handle, address: C.GoString(cAddress)}, nil
}

// DiscoverRemoteXPCPort queries the tunnel's Remote Service Discovery (RSD)
// document for the TCP port backing a RemoteXPC service name, e.g.
// "com.apple.coredevice.appservice" or the DVT process-control service.
func (t *nativeTunnel) DiscoverRemoteXPCPort(serviceName string) (int, error) {
	cName := C.CString(serviceName)
	defer C.free(unsafe.Pointer(cName))

	var port C.uint16_t
	ret := C.coredevice_tunnel_discover_service(t.handle, cName, &port)
	if ret != C.COREDEVICE_E_SUCCESS {
		return 0, errors.Newf("coredevice_tunnel_discover_service(%s) failed: %d", serviceName, int(ret))
	}
	return int(port), nil
}

func (t *nativeTunnel) DialRemoteXPC(port int) (RemoteXPCChannel, error) {
	conn, err := net.Dial("tcp", net.JoinHostPort(t.address, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial remote xpc port %d over tunnel", port)
	}
	return &remoteXPCChannel{conn: conn}, nil
}

func (t *nativeTunnel) Close() error {
	if t.handle != nil {
		ret := C.coredevice_tunnel_stop(t.handle)
		t.handle = nil
		if ret != C.COREDEVICE_E_SUCCESS {
			return errors.Newf("coredevice_tunnel_stop failed: %d", int(ret))
		}
	}
	return nil
}

// remoteXPCChannel speaks the length-prefixed RemoteXPC framing (a 4-byte
// big-endian length header followed by a binary plist payload) over the
// raw tunnel socket returned by DialRemoteXPC.
type remoteXPCChannel struct {
	conn net.Conn
}

func (c *remoteXPCChannel) ReadMessage() (interface{}, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read remote xpc frame length")
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, length)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return nil, errors.Wrap(err, "failed to read remote xpc frame body")
	}

	var decoded interface{}
	if err := plist.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode remote xpc frame body")
	}
	return decoded, nil
}

func (c *remoteXPCChannel) WriteMessage(v interface{}) error {
	payload, err := plist.Marshal(v, plist.BinaryFormat)
	if err != nil {
		return errors.Wrap(err, "failed to encode remote xpc frame body")
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "failed to write remote xpc frame length")
	}
	if _, err := c.conn.Write(payload); err != nil {
		return errors.Wrap(err, "failed to write remote xpc frame body")
	}
	return nil
}

func (c *remoteXPCChannel) Close() error {
	return c.conn.Close()
}
