// SPDX-License-Identifier: GPL-2.0-only

package jit

import (
	"github.com/jkcoxson/minimuxer/shim"
)

func errCreateDebug(cause error) error      { return shim.NewError(shim.ErrCreateDebugServer, cause) }
func errCreateInstproxy(cause error) error  { return shim.NewError(shim.ErrCreateInstproxy, cause) }
func errLookupApps(cause error) error       { return shim.NewError(shim.ErrLookupApps, cause) }
func errBundlePath(cause error) error       { return shim.NewError(shim.ErrBundlePath, cause) }
func errMaxPacket(cause error) error        { return shim.NewError(shim.ErrMaxPacket, cause) }
func errWorkingDirectory(cause error) error { return shim.NewError(shim.ErrWorkingDirectory, cause) }
func errArgv(cause error) error             { return shim.NewError(shim.ErrArgv, cause) }
func errLaunchSuccess(cause error) error    { return shim.NewError(shim.ErrLaunchSuccess, cause) }
func errDetach(cause error) error           { return shim.NewError(shim.ErrDetach, cause) }
func errAttach(cause error) error           { return shim.NewError(shim.ErrAttach, cause) }

func errCreateTunnel(cause error) error         { return shim.NewError(shim.ErrCreateCoreDeviceTunnel, cause) }
func errXPCHandshake(cause error) error         { return shim.NewError(shim.ErrXPCHandshake, cause) }
func errCreateDVT(cause error) error            { return shim.NewError(shim.ErrCreateDVT, cause) }
func errCreateRemoteServer(cause error) error   { return shim.NewError(shim.ErrCreateRemoteServer, cause) }
func errCreateProcessControl(cause error) error { return shim.NewError(shim.ErrCreateProcessControl, cause) }
func errCreateRemoteXPC(cause error) error      { return shim.NewError(shim.ErrCreateRemoteXPC, cause) }

func errFindApp(appID string) error {
	return shim.NewErrorMessage(shim.ErrFindApp, appID, nil)
}
