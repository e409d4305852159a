// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
// #include <libimobiledevice/debugserver.h>
// #include <stdlib.h>
import "C"

import (
	"strings"
	"unsafe"

	"github.com/efficientgo/core/errors"
)

type nativeDebugServer struct {
	client C.debugserver_client_t
}

func (d *nativeDevice) NewDebugServer(label string) (DebugServer, error) {
	cLabel := C.CString(label)
	defer C.free(unsafe.Pointer(cLabel))

	var client C.debugserver_client_t
	ret := C.debugserver_client_start_service(d.handle, &client, cLabel)
	if ret != C.DEBUGSERVER_E_SUCCESS {
		return nil, errors.Newf("debugserver_client_start_service failed: %d", int(ret))
	}
	return &nativeDebugServer{client: client}, nil
}

// SendCommand issues a single gdb-remote command line, e.g.
// "QSetMaxPacketSize: 1024" or "qLaunchSuccess", and returns the server's
// raw text response.
func (s *nativeDebugServer) SendCommand(command string) (string, error) {
	name := command
	var args []string
	if idx := strings.IndexByte(command, ' '); idx >= 0 {
		name = command[:idx]
		args = []string{strings.TrimSpace(command[idx+1:])}
	}

	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var cArgs **C.char
	if len(args) > 0 {
		argv := make([]*C.char, len(args))
		for i, a := range args {
			argv[i] = C.CString(a)
			defer C.free(unsafe.Pointer(argv[i]))
		}
		cArgs = &argv[0]
	}

	cmd := C.debugserver_command_new(cName, C.int(len(args)), cArgs)
	defer C.debugserver_command_free(cmd)

	var response *C.char
	var size C.size_t
	ret := C.debugserver_client_send_command(s.client, cmd, &response, &size)
	if ret != C.DEBUGSERVER_E_SUCCESS {
		return "", errors.Newf("debugserver_client_send_command(%s) failed: %d", command, int(ret))
	}
	if response == nil {
		return "", nil
	}
	defer C.free(unsafe.Pointer(response))
	return C.GoStringN(response, C.int(size)), nil
}

// SetArgv sets the inferior's argv (spec.md §4.7's "set argv to
// [bundle_path, bundle_path]" step) and returns the server's response text.
func (s *nativeDebugServer) SetArgv(argv []string) (string, error) {
	cArgs := make([]*C.char, len(argv))
	for i, a := range argv {
		cArgs[i] = C.CString(a)
		defer C.free(unsafe.Pointer(cArgs[i]))
	}
	var argvPtr **C.char
	if len(cArgs) > 0 {
		argvPtr = &cArgs[0]
	}

	var response *C.char
	ret := C.debugserver_client_set_argv(s.client, C.int(len(argv)), argvPtr, &response)
	if ret != C.DEBUGSERVER_E_SUCCESS {
		return "", errors.Newf("debugserver_client_set_argv failed: %d", int(ret))
	}
	if response == nil {
		return "", nil
	}
	defer C.free(unsafe.Pointer(response))
	return C.GoString(response), nil
}

func (s *nativeDebugServer) Close() {
	if s.client != nil {
		C.debugserver_client_free(s.client)
		s.client = nil
	}
}
