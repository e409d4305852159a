// SPDX-License-Identifier: GPL-2.0-only

package shim

import "fmt"

// Kind enumerates the error taxonomy a high-level minimuxer-shim operation
// can fail with. Each operation surfaces exactly one Kind summarizing the
// first failure along its path; the underlying cause stays out of the
// error text, which only adds a Message payload where one is set.
type Kind int

const (
	// Success is never returned as an error; it exists so Kind's zero
	// value isn't a meaningful failure code.
	Success Kind = iota

	// Input errors: caller supplied bad arguments.
	ErrBadPairingFile
	ErrMissingUDID
	ErrFunctionArgs

	// Environment errors: the device or a native service session is
	// unavailable.
	ErrNoDevice
	ErrNoConnection
	ErrCreateLockdown
	ErrCreateInstproxy
	ErrCreateAfc
	ErrCreateMisagent
	ErrCreateImageMounter
	ErrCreateDebugServer
	ErrCreateHeartbeat
	ErrCreateCoreDeviceTunnel
	ErrCreateRemoteXPC
	ErrCreateDVT
	ErrCreateProcessControl
	ErrCreateRemoteServer

	// Protocol errors.
	ErrUnknownMessageType
	ErrMalformedPacket
	ErrMissingPlistField

	// Device I/O errors.
	ErrRWAfc
	ErrImageUpload
	ErrImageMount
	ErrImageLookup
	ErrImageRead
	ErrDownload

	// Install/uninstall errors.
	ErrInstallApp
	ErrUninstallApp
	ErrProfileInstall
	ErrProfileRemove

	// Debug errors.
	ErrMaxPacket
	ErrWorkingDirectory
	ErrArgv
	ErrLaunchSuccess
	ErrDetach
	ErrAttach
	ErrXPCHandshake
	ErrTunnelConnect
	ErrTunnelClose

	// Misc.
	ErrLookupApps
	ErrFindApp
	ErrBundlePath
)

var kindNames = map[Kind]string{
	Success:                   "success",
	ErrBadPairingFile:         "bad pairing file",
	ErrMissingUDID:            "pairing file missing UDID",
	ErrFunctionArgs:           "invalid function arguments",
	ErrNoDevice:               "no device reachable",
	ErrNoConnection:           "no device known",
	ErrCreateLockdown:         "failed to open lockdown session",
	ErrCreateInstproxy:        "failed to open installation proxy session",
	ErrCreateAfc:              "failed to open AFC session",
	ErrCreateMisagent:         "failed to open misagent session",
	ErrCreateImageMounter:     "failed to open image mounter session",
	ErrCreateDebugServer:      "failed to open debug server session",
	ErrCreateHeartbeat:        "failed to open heartbeat session",
	ErrCreateCoreDeviceTunnel: "failed to open CoreDevice tunnel",
	ErrCreateRemoteXPC:        "failed to open RemoteXPC channel",
	ErrCreateDVT:              "failed to open DVT channel",
	ErrCreateProcessControl:   "failed to open process control client",
	ErrCreateRemoteServer:     "failed to read remote-server message",
	ErrUnknownMessageType:     "unknown multiplexer message type",
	ErrMalformedPacket:        "malformed packet",
	ErrMissingPlistField:      "missing plist field",
	ErrRWAfc:                  "AFC read/write failed",
	ErrImageUpload:            "developer disk image upload failed",
	ErrImageMount:             "developer disk image mount failed",
	ErrImageLookup:            "developer disk image lookup failed",
	ErrImageRead:              "developer disk image artifact read failed",
	ErrDownload:               "developer disk image download failed",
	ErrInstallApp:             "app install failed",
	ErrUninstallApp:           "app uninstall failed",
	ErrProfileInstall:         "provisioning profile install failed",
	ErrProfileRemove:          "provisioning profile remove failed",
	ErrMaxPacket:              "failed to set max packet size",
	ErrWorkingDirectory:       "failed to set working directory",
	ErrArgv:                   "failed to set argv",
	ErrLaunchSuccess:          "launch did not report success",
	ErrDetach:                 "failed to detach debugger",
	ErrAttach:                 "failed to attach debugger",
	ErrXPCHandshake:           "RemoteXPC handshake failed",
	ErrTunnelConnect:          "CoreDevice tunnel connect failed",
	ErrTunnelClose:            "CoreDevice tunnel close failed",
	ErrLookupApps:             "app lookup failed",
	ErrFindApp:                "app not found",
	ErrBundlePath:             "failed to resolve bundle executable path",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown error kind %d", int(k))
}

// Error is the error type every exported minimuxer-shim operation returns.
// Message, when non-empty, carries a payload worth surfacing to the caller
// (e.g. the text of an install failure); Cause is reachable through Unwrap
// and intentionally not part of Error() to keep the exported surface a
// closed taxonomy rather than a grab-bag of internal strings. Building an
// Error does not log its Cause, and the operations that return one do not
// log it either.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// newErr builds an Error from a Kind and an optional wrapped cause.
func newErr(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// newErrMsg builds an Error carrying a caller-visible message payload.
func newErrMsg(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewError is the exported form of newErr, used by sibling packages
// (ddimount, jit, apps) that need to surface the same closed error
// taxonomy from their own operations.
func NewError(kind Kind, cause error) *Error {
	return newErr(kind, cause)
}

// NewErrorMessage is the exported form of newErrMsg.
func NewErrorMessage(kind Kind, message string, cause error) *Error {
	return newErrMsg(kind, message, cause)
}
