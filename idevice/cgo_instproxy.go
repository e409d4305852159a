// SPDX-License-Identifier: GPL-2.0-only

package idevice

// #include <libimobiledevice/libimobiledevice.h>
// #include <libimobiledevice/installation_proxy.h>
// #include <plist/plist.h>
// #include <stdlib.h>
import "C"

import (
	"unsafe"

	"github.com/efficientgo/core/errors"
	"howett.net/plist"
)

type nativeInstproxy struct {
	client C.instproxy_client_t
}

func (d *nativeDevice) NewInstallationProxy(label string) (InstallationProxy, error) {
	cLabel := C.CString(label)
	defer C.free(unsafe.Pointer(cLabel))

	var client C.instproxy_client_t
	ret := C.instproxy_client_start_service(d.handle, &client, cLabel)
	if ret != C.INSTPROXY_E_SUCCESS {
		return nil, errors.Newf("instproxy_client_start_service failed: %d", int(ret))
	}
	return &nativeInstproxy{client: client}, nil
}

func plistToNode(v interface{}) (C.plist_t, error) {
	xml, err := plist.Marshal(v, plist.XMLFormat)
	if err != nil {
		return nil, err
	}
	cXML := C.CString(string(xml))
	defer C.free(unsafe.Pointer(cXML))

	var node C.plist_t
	C.plist_from_xml(cXML, C.uint32_t(len(xml)), &node)
	return node, nil
}

func (i *nativeInstproxy) Lookup(appID string, returnAttributes []string) (map[string]interface{}, error) {
	opts := C.instproxy_client_options_new()
	defer C.instproxy_client_options_free(opts)
	C.instproxy_client_options_add(opts, C.CString("ApplicationType"), C.CString("Any"), nil)

	attrNode, err := plistToNode(returnAttributes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build return-attributes plist")
	}
	C.instproxy_client_options_set_return_attributes_node(opts, attrNode)

	cAppID := C.CString(appID)
	defer C.free(unsafe.Pointer(cAppID))
	appIDs := C.plist_new_array()
	C.plist_array_append_item(appIDs, C.plist_new_string(cAppID))

	var result C.plist_t
	ret := C.instproxy_lookup(i.client, appIDs, opts, &result)
	if ret != C.INSTPROXY_E_SUCCESS {
		return nil, errors.Newf("instproxy_lookup failed: %d", int(ret))
	}
	defer C.plist_free(result)

	raw := plistNodeToXML(result)
	var decoded map[string]interface{}
	if err := plist.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode lookup response")
	}
	entry, ok := decoded[appID].(map[string]interface{})
	if !ok {
		return nil, errors.Newf("app %s not present in lookup response", appID)
	}
	return entry, nil
}

func (i *nativeInstproxy) PathForBundleIdentifier(appID string) (string, error) {
	info, err := i.Lookup(appID, []string{"CFBundleExecutable", "CFBundlePath", "BundlePath"})
	if err != nil {
		return "", err
	}
	bundlePath, _ := info["BundlePath"].(string)
	executable, _ := info["CFBundleExecutable"].(string)
	if bundlePath == "" || executable == "" {
		return "", errors.Newf("incomplete bundle path data for %s", appID)
	}
	return bundlePath + "/" + executable, nil
}

func (i *nativeInstproxy) Install(stagedPath string, clientOptions map[string]interface{}) error {
	opts := C.instproxy_client_options_new()
	defer C.instproxy_client_options_free(opts)
	for k, v := range clientOptions {
		s, _ := v.(string)
		C.instproxy_client_options_add(opts, C.CString(k), C.CString(s), nil)
	}

	cPath := C.CString(stagedPath)
	defer C.free(unsafe.Pointer(cPath))

	ret := C.instproxy_install(i.client, cPath, opts, nil, nil)
	if ret != C.INSTPROXY_E_SUCCESS {
		return errors.Newf("instproxy_install failed: %d", int(ret))
	}
	return nil
}

func (i *nativeInstproxy) Uninstall(appID string) error {
	cAppID := C.CString(appID)
	defer C.free(unsafe.Pointer(cAppID))

	ret := C.instproxy_uninstall(i.client, cAppID, nil, nil, nil)
	if ret != C.INSTPROXY_E_SUCCESS {
		return errors.Newf("instproxy_uninstall failed: %d", int(ret))
	}
	return nil
}

func (i *nativeInstproxy) Close() {
	if i.client != nil {
		C.instproxy_client_free(i.client)
		i.client = nil
	}
}
