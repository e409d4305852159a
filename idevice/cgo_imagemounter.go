// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
// #include <libimobiledevice/mobile_image_mounter.h>
// #include <plist/plist.h>
// #include <stdlib.h>
//
// extern void goMountProgressCallback(plist_t status, void *user_data);
import "C"

import (
	"unsafe"

	"github.com/efficientgo/core/errors"
)

type nativeImageMounter struct {
	client C.mobile_image_mounter_client_t
}

func (d *nativeDevice) NewImageMounter(label string) (ImageMounter, error) {
	cLabel := C.CString(label)
	defer C.free(unsafe.Pointer(cLabel))

	var client C.mobile_image_mounter_client_t
	ret := C.mobile_image_mounter_start_service(d.handle, &client, cLabel)
	if ret != C.MOBILE_IMAGE_MOUNTER_E_SUCCESS {
		return nil, errors.Newf("mobile_image_mounter_start_service failed: %d", int(ret))
	}
	return &nativeImageMounter{client: client}, nil
}

func (m *nativeImageMounter) LookupImage(imageType string) (MountedImage, error) {
	cType := C.CString(imageType)
	defer C.free(unsafe.Pointer(cType))

	var result C.plist_t
	ret := C.mobile_image_mounter_lookup_image(m.client, cType, &result)
	if ret != C.MOBILE_IMAGE_MOUNTER_E_SUCCESS {
		return MountedImage{}, errors.Newf("mobile_image_mounter_lookup_image failed: %d", int(ret))
	}
	defer C.plist_free(result)

	sigs := C.plist_dict_get_item(result, C.CString("ImageSignature"))
	if sigs == nil {
		return MountedImage{}, nil
	}
	count := int(C.plist_array_get_size(sigs))
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		item := C.plist_array_get_item(sigs, C.uint32_t(i))
		var cData *C.char
		var length C.uint64_t
		C.plist_get_data_val(item, &cData, &length)
		out = append(out, C.GoBytes(unsafe.Pointer(cData), C.int(length)))
		C.free(unsafe.Pointer(cData))
	}
	return MountedImage{Signatures: out}, nil
}

func (m *nativeImageMounter) UploadImage(imagePath, imageType, signaturePath string) error {
	cImage := C.CString(imagePath)
	defer C.free(unsafe.Pointer(cImage))
	cType := C.CString(imageType)
	defer C.free(unsafe.Pointer(cType))
	cSig := C.CString(signaturePath)
	defer C.free(unsafe.Pointer(cSig))

	ret := C.mobile_image_mounter_upload_image_file(m.client, cImage, cType, cSig)
	if ret != C.MOBILE_IMAGE_MOUNTER_E_SUCCESS {
		return errors.Newf("mobile_image_mounter_upload_image_file failed: %d", int(ret))
	}
	return nil
}

func (m *nativeImageMounter) MountImage(imagePath, imageType, signaturePath string) error {
	cImage := C.CString(imagePath)
	defer C.free(unsafe.Pointer(cImage))
	cType := C.CString(imageType)
	defer C.free(unsafe.Pointer(cType))
	cSig := C.CString(signaturePath)
	defer C.free(unsafe.Pointer(cSig))

	var status C.plist_t
	ret := C.mobile_image_mounter_mount_image_file(m.client, cImage, cSig, cType, &status)
	if status != nil {
		C.plist_free(status)
	}
	if ret != C.MOBILE_IMAGE_MOUNTER_E_SUCCESS {
		return errors.Newf("mobile_image_mounter_mount_image_file failed: %d", int(ret))
	}
	return nil
}

// mountProgressRegistry lets the C callback trampoline find the Go closure
// for a given call without passing a Go pointer through cgo.
var mountProgressRegistry = newCallbackRegistry()

//export goMountProgressCallback
func goMountProgressCallback(status C.plist_t, userData unsafe.Pointer) {
	id := uintptr(userData)
	cb, ok := mountProgressRegistry.lookup(id)
	if !ok || cb == nil {
		return
	}
	percentNode := C.plist_dict_get_item(status, C.CString("PercentComplete"))
	var percent C.uint64_t
	if percentNode != nil {
		C.plist_get_uint_val(percentNode, &percent)
	}
	cb(int(percent))
}

func (m *nativeImageMounter) MountPersonalizedImage(image, trustCache, buildManifest []byte, uniqueChipID uint64, progress func(percent int)) error {
	if len(image) == 0 || len(trustCache) == 0 || len(buildManifest) == 0 {
		return errors.New("personalized mount requires image, trust cache, and build manifest bytes")
	}

	id, cleanup := mountProgressRegistry.register(progress)
	defer cleanup()

	imageData := C.CBytes(image)
	defer C.free(imageData)
	trustCacheData := C.CBytes(trustCache)
	defer C.free(trustCacheData)

	manifestNode, err := plistToNode(buildManifest)
	if err != nil {
		return errors.Wrap(err, "failed to parse build manifest")
	}
	defer C.plist_free(manifestNode)

	ret := C.mobile_image_mounter_mount_image_with_info(
		m.client,
		(*C.char)(imageData), C.uint64_t(len(image)),
		(*C.char)(trustCacheData), C.uint64_t(len(trustCache)),
		manifestNode,
		C.uint64_t(uniqueChipID),
		C.mobile_image_mounter_upload_cb(C.goMountProgressCallback),
		unsafe.Pointer(id),
	)
	if ret != C.MOBILE_IMAGE_MOUNTER_E_SUCCESS {
		return errors.Newf("mobile_image_mounter_mount_image_with_info failed: %d", int(ret))
	}
	return nil
}

func (m *nativeImageMounter) Close() {
	if m.client != nil {
		C.mobile_image_mounter_hangup(m.client)
		C.mobile_image_mounter_free(m.client)
		m.client = nil
	}
}
