// SPDX-License-Identifier: GPL-2.0-only

package jit

import (
	"testing"

	"github.com/go-kit/log"

	"github.com/jkcoxson/minimuxer/idevice"
)

type fakeDebugServer struct {
	commands []string
	argvSet  [][]string
	fail     string
}

func (d *fakeDebugServer) SendCommand(command string) (string, error) {
	d.commands = append(d.commands, command)
	if d.fail == command {
		return "", errTest
	}
	if command == "qLaunchSuccess" {
		return "OK", nil
	}
	return "", nil
}

func (d *fakeDebugServer) SetArgv(argv []string) (string, error) {
	d.argvSet = append(d.argvSet, argv)
	if d.fail == "SetArgv" {
		return "", errTest
	}
	return "OK", nil
}

func (d *fakeDebugServer) Close() {}

type fakeInstproxy struct {
	container  string
	bundlePath string
	failLookup bool
	failPath   bool
}

func (p *fakeInstproxy) Lookup(appID string, returnAttributes []string) (map[string]interface{}, error) {
	if p.failLookup {
		return nil, errTest
	}
	return map[string]interface{}{"Container": p.container}, nil
}

func (p *fakeInstproxy) PathForBundleIdentifier(appID string) (string, error) {
	if p.failPath {
		return "", errTest
	}
	return p.bundlePath, nil
}

func (p *fakeInstproxy) Install(stagedPath string, clientOptions map[string]interface{}) error { return nil }
func (p *fakeInstproxy) Uninstall(appID string) error                                          { return nil }
func (p *fakeInstproxy) Close()                                                                {}

type fakeDevice struct {
	debug     *fakeDebugServer
	instproxy *fakeInstproxy
}

func (d *fakeDevice) UDID() string { return "test" }
func (d *fakeDevice) NewLockdownSession(string) (idevice.LockdownSession, error) { return nil, nil }
func (d *fakeDevice) NewInstallationProxy(string) (idevice.InstallationProxy, error) {
	return d.instproxy, nil
}
func (d *fakeDevice) NewAFCClient(string) (idevice.AFCClient, error)          { return nil, nil }
func (d *fakeDevice) NewMisagentClient(string) (idevice.MisagentClient, error) { return nil, nil }
func (d *fakeDevice) NewImageMounter(string) (idevice.ImageMounter, error)    { return nil, nil }
func (d *fakeDevice) NewDebugServer(string) (idevice.DebugServer, error)      { return d.debug, nil }
func (d *fakeDevice) NewHeartbeatClient(string) (idevice.HeartbeatClient, error) {
	return nil, nil
}
func (d *fakeDevice) OpenCoreDeviceTunnel() (idevice.Tunnel, error) { return nil, nil }
func (d *fakeDevice) Close()                                       {}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

var errTest = &testErr{"induced failure"}

func TestFormatPIDZeroPads(t *testing.T) {
	cases := map[uint32]string{
		0:      "00000000",
		255:    "000000FF",
		123456: "0001E240",
	}
	for pid, want := range cases {
		if got := formatPID(pid); got != want {
			t.Errorf("formatPID(%d) = %q, want %q", pid, got, want)
		}
	}
}

func TestLaunchByAppIDCommandSequence(t *testing.T) {
	debug := &fakeDebugServer{}
	instproxy := &fakeInstproxy{container: "/var/containers/Bundle/App/X", bundlePath: "/var/containers/Bundle/App/X/App.app/App"}
	device := &fakeDevice{debug: debug, instproxy: instproxy}

	if err := LaunchByAppID(device, log.NewNopLogger(), "com.example.app"); err != nil {
		t.Fatalf("LaunchByAppID returned error: %v", err)
	}

	wantCommands := []string{"QSetMaxPacketSize: 1024", "QSetWorkingDir: /var/containers/Bundle/App/X", "qLaunchSuccess", "D"}
	if len(debug.commands) != len(wantCommands) {
		t.Fatalf("commands = %v, want %v", debug.commands, wantCommands)
	}
	for i, want := range wantCommands {
		if debug.commands[i] != want {
			t.Errorf("commands[%d] = %q, want %q", i, debug.commands[i], want)
		}
	}
	if len(debug.argvSet) != 1 {
		t.Fatalf("expected exactly one SetArgv call, got %d", len(debug.argvSet))
	}
	wantArgv := []string{instproxy.bundlePath, instproxy.bundlePath}
	if debug.argvSet[0][0] != wantArgv[0] || debug.argvSet[0][1] != wantArgv[1] {
		t.Errorf("argv = %v, want %v", debug.argvSet[0], wantArgv)
	}
}

func TestLaunchByAppIDMissingContainer(t *testing.T) {
	debug := &fakeDebugServer{}
	instproxy := &fakeInstproxy{container: "", bundlePath: "/App"}
	device := &fakeDevice{debug: debug, instproxy: instproxy}

	err := LaunchByAppID(device, log.NewNopLogger(), "com.example.app")
	if err == nil {
		t.Fatal("expected error when app lookup has no Container field")
	}
}

func TestAttachByPIDSequence(t *testing.T) {
	debug := &fakeDebugServer{}
	device := &fakeDevice{debug: debug}

	if err := AttachByPID(device, log.NewNopLogger(), 42); err != nil {
		t.Fatalf("AttachByPID returned error: %v", err)
	}
	want := []string{"vAttach;0000002A", "D"}
	if len(debug.commands) != len(want) || debug.commands[0] != want[0] || debug.commands[1] != want[1] {
		t.Errorf("commands = %v, want %v", debug.commands, want)
	}
}
