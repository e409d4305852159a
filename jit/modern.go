// SPDX-License-Identifier: GPL-2.0-only

package jit

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/jkcoxson/minimuxer/idevice"
)

// RemoteXPC service names discovered over the CoreDevice tunnel for the
// iOS 17+ launch path.
const (
	dvtServiceName        = "com.apple.instruments.dtservicehub"
	debugProxyServiceName = "com.apple.debugserver.DVTSecureSocketProxy"
)

// LaunchByAppIDModern implements the iOS >=17 path of spec.md §4.7: tunnel
// to the device, discover the DVT and debug-proxy RemoteXPC services,
// launch the app through DVT's process-control client, then attach and
// detach over the debug proxy so the process picks up its JIT entitlement.
func LaunchByAppIDModern(device idevice.Device, logger log.Logger, appID string) error {
	tunnel, err := device.OpenCoreDeviceTunnel()
	if err != nil {
		return errCreateTunnel(err)
	}
	defer tunnel.Close()

	dvtPort, err := tunnel.DiscoverRemoteXPCPort(dvtServiceName)
	if err != nil {
		return errXPCHandshake(err)
	}
	debugProxyPort, err := tunnel.DiscoverRemoteXPCPort(debugProxyServiceName)
	if err != nil {
		return errXPCHandshake(err)
	}

	pid, err := launchViaDVT(tunnel, dvtPort, appID, logger)
	if err != nil {
		return err
	}

	return detachViaDebugProxy(tunnel, debugProxyPort, pid, logger)
}

// launchViaDVT connects to the DVT RemoteXPC port, reads its greeting
// remote-server message, then drives a process-control launch request
// (fire-and-forget, not suspended, killing any existing instance).
func launchViaDVT(tunnel idevice.Tunnel, port int, appID string, logger log.Logger) (uint32, error) {
	channel, err := tunnel.DialRemoteXPC(port)
	if err != nil {
		return 0, errCreateDVT(err)
	}
	defer channel.Close()

	if _, err := channel.ReadMessage(); err != nil {
		return 0, errCreateRemoteServer(err)
	}

	request := map[string]interface{}{
		"Request":      "LaunchApplication",
		"BundleID":     appID,
		"Suspended":    false,
		"KillExisting": true,
	}
	if err := channel.WriteMessage(request); err != nil {
		return 0, errCreateProcessControl(err)
	}

	response, err := channel.ReadMessage()
	if err != nil {
		return 0, errCreateProcessControl(err)
	}
	fields, _ := response.(map[string]interface{})
	pid, ok := pidFromResponse(fields)
	if !ok {
		return 0, errLaunchSuccess(nil)
	}
	level.Info(logger).Log("msg", "launched app via DVT", "app_id", appID, "pid", pid)

	// Disabling the memory limit is best-effort: a failure here does not
	// fail the launch.
	disableRequest := map[string]interface{}{"Request": "DisableMemoryLimit", "PID": pid}
	if err := channel.WriteMessage(disableRequest); err != nil {
		level.Debug(logger).Log("msg", "failed to disable memory limit", "pid", pid, "err", err)
	} else if _, err := channel.ReadMessage(); err != nil {
		level.Debug(logger).Log("msg", "no response disabling memory limit", "pid", pid, "err", err)
	}

	return pid, nil
}

func pidFromResponse(fields map[string]interface{}) (uint32, bool) {
	if fields == nil {
		return 0, false
	}
	switch v := fields["PID"].(type) {
	case uint64:
		return uint32(v), true
	case int64:
		return uint32(v), true
	case uint32:
		return v, true
	case int:
		return uint32(v), true
	default:
		return 0, false
	}
}

// detachViaDebugProxy reconnects over the debug-proxy RemoteXPC port and
// issues the vAttach/detach round-trip described in spec.md §4.7 step 6.
func detachViaDebugProxy(tunnel idevice.Tunnel, port int, pid uint32, logger log.Logger) error {
	channel, err := tunnel.DialRemoteXPC(port)
	if err != nil {
		return errCreateRemoteXPC(err)
	}
	defer channel.Close()

	attach := map[string]interface{}{"Command": "vAttach", "PID": formatPID(pid)}
	if err := channel.WriteMessage(attach); err != nil {
		return errAttach(err)
	}
	if _, err := channel.ReadMessage(); err != nil {
		return errAttach(err)
	}

	for i := 0; i < 4; i++ {
		if err := channel.WriteMessage(map[string]interface{}{"Command": "D"}); err != nil {
			return errDetach(err)
		}
		if _, err := channel.ReadMessage(); err != nil {
			return errDetach(err)
		}
	}

	level.Info(logger).Log("msg", "detached via debug proxy", "pid", pid)
	return nil
}
