// SPDX-License-Identifier: GPL-2.0-only

// Package idevice wraps the native iOS device-protocol library (lockdown,
// instproxy, afc, misagent, mobile_image_mounter, debugserver, heartbeat,
// and the iOS 17+ CoreDeviceProxy/RemoteXPC/DVT stack) behind a small set
// of Go interfaces. This package only defines the capability boundary and
// a concrete binding to it: a small Provider/Device pair with one
// capability interface per native service, and a single cgo-backed
// implementation underneath.
package idevice

import "time"

// Device is a single logical attachment to one physical iOS device,
// opened through the capability Provider. minimuxer-shim never juggles
// more than one at a time (spec.md §9 "Single-device assumption").
type Device interface {
	// UDID is the device's unique identifier as reported by the native
	// library. It must agree with the pairing record's UDID field.
	UDID() string

	NewLockdownSession(label string) (LockdownSession, error)
	NewInstallationProxy(label string) (InstallationProxy, error)
	NewAFCClient(label string) (AFCClient, error)
	NewMisagentClient(label string) (MisagentClient, error)
	NewImageMounter(label string) (ImageMounter, error)
	NewDebugServer(label string) (DebugServer, error)
	NewHeartbeatClient(label string) (HeartbeatClient, error)

	// OpenCoreDeviceTunnel establishes the iOS 17+ software VPN tunnel
	// used to reach RemoteXPC services (the personalized DDI mount path
	// and the DVT-based JIT launch path).
	OpenCoreDeviceTunnel() (Tunnel, error)

	Close()
}

// LockdownSession is the top-level service used to read device properties
// and to bootstrap the paired session needed for chip-id reads on the
// personalized mount path.
type LockdownSession interface {
	GetValue(domain, key string) (interface{}, error)
	StartPaired() error
	Close()
}

// InstallationProxy provides app lookup, install, and uninstall.
type InstallationProxy interface {
	Lookup(appID string, returnAttributes []string) (map[string]interface{}, error)
	PathForBundleIdentifier(appID string) (string, error)
	Install(stagedPath string, clientOptions map[string]interface{}) error
	Uninstall(appID string) error
	Close()
}

// AFCFileInfo mirrors the subset of st_* fields minimuxer-shim reads from
// AFC get_file_info responses.
type AFCFileInfo struct {
	IFMT string
	Size uint64
}

// AFCClient is the Apple File Conduit file-transfer service.
type AFCClient interface {
	Stat(path string) (AFCFileInfo, error)
	MkDir(path string) error
	OpenWrite(path string) (AFCFile, error)
	OpenRead(path string) (AFCFile, error)
	ListDirectory(path string) ([]string, error)
	RemoveAll(path string) error
	Close()
}

// AFCFile is a single open file handle on the device.
type AFCFile interface {
	Write(b []byte) error
	Read(n uint64) ([]byte, error)
	Close() error
}

// MisagentClient manages provisioning profiles.
type MisagentClient interface {
	Install(profile []byte) error
	Remove(uuid string) error
	// Copy returns every installed profile as a raw binary-plist blob
	// (a data plist containing a concatenation of bytes and an embedded
	// XML plist; see extractEmbeddedXML in package apps).
	Copy() ([][]byte, error)
	Close()
}

// MountedImage describes an already-mounted developer disk image as
// reported by the image mounter's "lookup image" call.
type MountedImage struct {
	Signatures [][]byte
}

// ImageMounter is the mobile_image_mounter service.
type ImageMounter interface {
	LookupImage(imageType string) (MountedImage, error)
	UploadImage(imagePath, imageType, signaturePath string) error
	MountImage(imagePath, imageType, signaturePath string) error
	// MountPersonalizedImage mounts the iOS 17+ personalized DDI given
	// the raw image/trustcache/manifest bytes and the device's unique
	// chip ID. progress, if non-nil, is invoked with 0-100 as the mount
	// proceeds.
	MountPersonalizedImage(image, trustCache, buildManifest []byte, uniqueChipID uint64, progress func(percent int)) error
	Close()
}

// DebugServer speaks the gdb-remote-serial protocol used to launch and
// detach from processes (spec.md §4.7, legacy path).
type DebugServer interface {
	SendCommand(command string) (string, error)
	SetArgv(argv []string) (string, error)
	Close()
}

// HeartbeatClient keeps a lockdown session alive.
type HeartbeatClient interface {
	Receive(timeout time.Duration) (interface{}, error)
	Send(plist interface{}) error
	Close()
}

// Tunnel is the iOS 17+ CoreDeviceProxy software-VPN channel. Callers
// discover RemoteXPC services by name over it.
type Tunnel interface {
	// DiscoverRemoteXPCPort performs the RSD handshake and returns the
	// local port at which the given RemoteXPC service is reachable.
	DiscoverRemoteXPCPort(serviceName string) (int, error)
	// DialRemoteXPC opens a RemoteXPC channel to the given local port.
	DialRemoteXPC(port int) (RemoteXPCChannel, error)
	Close() error
}

// RemoteXPCChannel is a single RemoteXPC connection, e.g. to the DVT
// remote-server port or the debug-proxy port discovered via a Tunnel.
type RemoteXPCChannel interface {
	ReadMessage() (interface{}, error)
	WriteMessage(v interface{}) error
	Close() error
}

// Provider is the top-level capability factory: it knows how to probe for
// and open the single logical device minimuxer-shim is configured for.
type Provider interface {
	// Reachable reports whether the device's lockdown port answers within
	// timeout.
	Reachable(timeout time.Duration) bool
	// Open returns a handle to the device, or an error if the native
	// library could not produce one on this attempt (no retry).
	Open() (Device, error)
}
