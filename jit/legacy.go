// SPDX-License-Identifier: GPL-2.0-only

// Package jit implements the JIT Launcher (C7): launching or attaching a
// debugger to an app so its JIT-compiled pages can be entitled.
// LaunchByAppID speaks the legacy debugserver gdb-remote protocol and
// LaunchByAppIDModern takes the iOS 17+ RemoteXPC/DVT path through a
// CoreDevice tunnel. The package does not read the device's iOS version to
// choose between them; the caller picks one.
package jit

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/jkcoxson/minimuxer/idevice"
)

const (
	debugLabel     = "minimuxer-jit"
	instproxyLabel = "minimuxer-jit-instproxy"
)

// lookupAttributes are the instproxy return-attributes requested for an app
// lookup prior to launch, matching the original JIT launcher's filter.
var lookupAttributes = []string{
	"CFBundleIdentifier",
	"CFBundleExecutable",
	"CFBundlePath",
	"BundlePath",
	"Container",
}

// LaunchByAppID resolves appID to a container/bundle path, sets up the
// debugserver session, and issues the gdb-remote launch-and-detach sequence
// described in spec.md §4.7's legacy path.
func LaunchByAppID(device idevice.Device, logger log.Logger, appID string) error {
	debugServer, err := device.NewDebugServer(debugLabel)
	if err != nil {
		return errCreateDebug(err)
	}
	defer debugServer.Close()

	instproxy, err := device.NewInstallationProxy(instproxyLabel)
	if err != nil {
		return errCreateInstproxy(err)
	}
	defer instproxy.Close()

	info, err := instproxy.Lookup(appID, lookupAttributes)
	if err != nil {
		return errLookupApps(err)
	}

	workingDir, ok := info["Container"].(string)
	if !ok || workingDir == "" {
		return errFindApp(appID)
	}
	level.Debug(logger).Log("msg", "resolved container", "app_id", appID, "container", workingDir)

	bundlePath, err := instproxy.PathForBundleIdentifier(appID)
	if err != nil {
		return errBundlePath(err)
	}
	level.Info(logger).Log("msg", "resolved bundle executable path", "path", bundlePath)

	if _, err := debugServer.SendCommand("QSetMaxPacketSize: 1024"); err != nil {
		return errMaxPacket(err)
	}
	if _, err := debugServer.SendCommand(fmt.Sprintf("QSetWorkingDir: %s", workingDir)); err != nil {
		return errWorkingDirectory(err)
	}
	if _, err := debugServer.SetArgv([]string{bundlePath, bundlePath}); err != nil {
		return errArgv(err)
	}
	if _, err := debugServer.SendCommand("qLaunchSuccess"); err != nil {
		return errLaunchSuccess(err)
	}
	if _, err := debugServer.SendCommand("D"); err != nil {
		return errDetach(err)
	}

	level.Info(logger).Log("msg", "launched and detached", "app_id", appID)
	return nil
}

// AttachByPID opens a debugserver session and issues a bare attach/detach
// round trip for an already-running process, per spec.md §4.7's "By PID"
// entry point.
func AttachByPID(device idevice.Device, logger log.Logger, pid uint32) error {
	debugServer, err := device.NewDebugServer(debugLabel)
	if err != nil {
		return errCreateDebug(err)
	}
	defer debugServer.Close()

	hexPID := formatPID(pid)
	if _, err := debugServer.SendCommand(fmt.Sprintf("vAttach;%s", hexPID)); err != nil {
		return errAttach(err)
	}
	if _, err := debugServer.SendCommand("D"); err != nil {
		return errDetach(err)
	}

	level.Info(logger).Log("msg", "attached and detached", "pid", pid)
	return nil
}

// formatPID renders pid as the 8-hex-digit zero-padded uppercase token the
// gdb-remote vAttach command expects.
func formatPID(pid uint32) string {
	return fmt.Sprintf("%08X", pid)
}
