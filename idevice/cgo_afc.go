// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
// #include <libimobiledevice/afc.h>
// #include <stdlib.h>
import "C"

import (
	"strconv"
	"unsafe"

	"github.com/efficientgo/core/errors"
)

type nativeAFC struct {
	client C.afc_client_t
}

func (d *nativeDevice) NewAFCClient(label string) (AFCClient, error) {
	cLabel := C.CString(label)
	defer C.free(unsafe.Pointer(cLabel))

	var client C.afc_client_t
	ret := C.afc_client_start_service(d.handle, &client, cLabel)
	if ret != C.AFC_E_SUCCESS {
		return nil, errors.Newf("afc_client_start_service failed: %d", int(ret))
	}
	return &nativeAFC{client: client}, nil
}

// cStringList walks a libimobiledevice-style NULL-terminated char**
// response and copies it to a Go slice, freeing the native array.
func cStringList(list **C.char) []string {
	if list == nil {
		return nil
	}
	defer C.afc_dictionary_free(list)

	var out []string
	for p := list; *p != nil; p = (**C.char)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) + unsafe.Sizeof(*p))) {
		out = append(out, C.GoString(*p))
	}
	return out
}

func (a *nativeAFC) Stat(path string) (AFCFileInfo, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var info **C.char
	ret := C.afc_get_file_info(a.client, cPath, &info)
	if ret != C.AFC_E_SUCCESS {
		return AFCFileInfo{}, errors.Newf("afc_get_file_info(%s) failed: %d", path, int(ret))
	}
	kv := cStringList(info)

	result := AFCFileInfo{}
	for i := 0; i+1 < len(kv); i += 2 {
		switch kv[i] {
		case "st_ifmt":
			result.IFMT = kv[i+1]
		case "st_size":
			size, err := strconv.ParseUint(kv[i+1], 10, 64)
			if err == nil {
				result.Size = size
			}
		}
	}
	return result, nil
}

func (a *nativeAFC) MkDir(path string) error {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ret := C.afc_make_directory(a.client, cPath)
	if ret != C.AFC_E_SUCCESS {
		return errors.Newf("afc_make_directory(%s) failed: %d", path, int(ret))
	}
	return nil
}

func (a *nativeAFC) openHandle(path string, mode C.afc_file_mode_t) (C.uint64_t, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var handle C.uint64_t
	ret := C.afc_file_open(a.client, cPath, mode, &handle)
	if ret != C.AFC_E_SUCCESS {
		return 0, errors.Newf("afc_file_open(%s) failed: %d", path, int(ret))
	}
	return handle, nil
}

func (a *nativeAFC) OpenWrite(path string) (AFCFile, error) {
	handle, err := a.openHandle(path, C.AFC_FOPEN_WRONLY)
	if err != nil {
		return nil, err
	}
	return &nativeAFCFile{client: a.client, handle: handle}, nil
}

func (a *nativeAFC) OpenRead(path string) (AFCFile, error) {
	handle, err := a.openHandle(path, C.AFC_FOPEN_RDONLY)
	if err != nil {
		return nil, err
	}
	return &nativeAFCFile{client: a.client, handle: handle}, nil
}

func (a *nativeAFC) ListDirectory(path string) ([]string, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var list **C.char
	ret := C.afc_read_directory(a.client, cPath, &list)
	if ret != C.AFC_E_SUCCESS {
		return nil, errors.Newf("afc_read_directory(%s) failed: %d", path, int(ret))
	}
	entries := cStringList(list)

	out := entries[:0]
	for _, e := range entries {
		if e != "." && e != ".." {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *nativeAFC) RemoveAll(path string) error {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ret := C.afc_remove_path_and_contents(a.client, cPath)
	if ret != C.AFC_E_SUCCESS {
		return errors.Newf("afc_remove_path_and_contents(%s) failed: %d", path, int(ret))
	}
	return nil
}

func (a *nativeAFC) Close() {
	if a.client != nil {
		C.afc_client_free(a.client)
		a.client = nil
	}
}

type nativeAFCFile struct {
	client C.afc_client_t
	handle C.uint64_t
}

func (f *nativeAFCFile) Write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	var written C.uint32_t
	ret := C.afc_file_write(f.client, f.handle, (*C.char)(unsafe.Pointer(&b[0])), C.uint32_t(len(b)), &written)
	if ret != C.AFC_E_SUCCESS {
		return errors.Newf("afc_file_write failed: %d", int(ret))
	}
	if int(written) != len(b) {
		return errors.Newf("afc_file_write short write: %d of %d bytes", int(written), len(b))
	}
	return nil
}

func (f *nativeAFCFile) Read(n uint64) ([]byte, error) {
	buf := make([]byte, n)
	var read C.uint32_t
	ret := C.afc_file_read(f.client, f.handle, (*C.char)(unsafe.Pointer(&buf[0])), C.uint32_t(n), &read)
	if ret != C.AFC_E_SUCCESS {
		return nil, errors.Newf("afc_file_read failed: %d", int(ret))
	}
	return buf[:read], nil
}

func (f *nativeAFCFile) Close() error {
	ret := C.afc_file_close(f.client, f.handle)
	if ret != C.AFC_E_SUCCESS {
		return errors.Newf("afc_file_close failed: %d", int(ret))
	}
	return nil
}
