// SPDX-License-Identifier: GPL-2.0-only

package apps

import (
	"testing"

	"github.com/go-kit/log"

	"github.com/jkcoxson/minimuxer/idevice"
)

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

var errTest = &testErr{"induced failure"}

type fakeAFCFile struct {
	written []byte
	toRead  []byte
}

func (f *fakeAFCFile) Write(b []byte) error         { f.written = append(f.written, b...); return nil }
func (f *fakeAFCFile) Read(n uint64) ([]byte, error) { return f.toRead, nil }
func (f *fakeAFCFile) Close() error                 { return nil }

type fakeAFCClient struct {
	dirs      map[string]bool
	written   map[string][]byte
	listed    map[string][]string
	statInfo  map[string]idevice.AFCFileInfo
	removed   []string
	failMkDir bool
}

func newFakeAFCClient() *fakeAFCClient {
	return &fakeAFCClient{
		dirs:     map[string]bool{},
		written:  map[string][]byte{},
		listed:   map[string][]string{},
		statInfo: map[string]idevice.AFCFileInfo{},
	}
}

func (c *fakeAFCClient) Stat(path string) (idevice.AFCFileInfo, error) {
	if info, ok := c.statInfo[path]; ok {
		return info, nil
	}
	if c.dirs[path] {
		return idevice.AFCFileInfo{IFMT: "S_IFDIR"}, nil
	}
	return idevice.AFCFileInfo{}, errTest
}

func (c *fakeAFCClient) MkDir(path string) error {
	if c.failMkDir {
		return errTest
	}
	c.dirs[path] = true
	return nil
}

func (c *fakeAFCClient) OpenWrite(path string) (idevice.AFCFile, error) {
	file := &fakeAFCFile{}
	c.written[path] = nil
	return &recordingFile{file: file, client: c, path: path}, nil
}

func (c *fakeAFCClient) OpenRead(path string) (idevice.AFCFile, error) {
	return &fakeAFCFile{toRead: c.written[path]}, nil
}

func (c *fakeAFCClient) ListDirectory(path string) ([]string, error) {
	return c.listed[path], nil
}

func (c *fakeAFCClient) RemoveAll(path string) error {
	c.removed = append(c.removed, path)
	return nil
}

func (c *fakeAFCClient) Close() {}

// recordingFile writes through to the owning fakeAFCClient so StageIPA's
// written bytes are observable by path after Close.
type recordingFile struct {
	file   *fakeAFCFile
	client *fakeAFCClient
	path   string
}

func (f *recordingFile) Write(b []byte) error {
	if err := f.file.Write(b); err != nil {
		return err
	}
	f.client.written[f.path] = f.file.written
	return nil
}
func (f *recordingFile) Read(n uint64) ([]byte, error) { return f.file.Read(n) }
func (f *recordingFile) Close() error                  { return f.file.Close() }

type fakeInstproxy struct {
	installedPath string
	installedOpts map[string]interface{}
	uninstalled   string
	failInstall   bool
	failUninstall bool
}

func (p *fakeInstproxy) Lookup(appID string, returnAttributes []string) (map[string]interface{}, error) {
	return nil, nil
}
func (p *fakeInstproxy) PathForBundleIdentifier(appID string) (string, error) { return "", nil }
func (p *fakeInstproxy) Install(stagedPath string, clientOptions map[string]interface{}) error {
	if p.failInstall {
		return errTest
	}
	p.installedPath = stagedPath
	p.installedOpts = clientOptions
	return nil
}
func (p *fakeInstproxy) Uninstall(appID string) error {
	if p.failUninstall {
		return errTest
	}
	p.uninstalled = appID
	return nil
}
func (p *fakeInstproxy) Close() {}

type fakeMisagent struct {
	installed []byte
	removed   []string
	profiles  [][]byte
	failCopy  bool
}

func (m *fakeMisagent) Install(profile []byte) error { m.installed = profile; return nil }
func (m *fakeMisagent) Remove(uuid string) error {
	m.removed = append(m.removed, uuid)
	return nil
}
func (m *fakeMisagent) Copy() ([][]byte, error) {
	if m.failCopy {
		return nil, errTest
	}
	return m.profiles, nil
}
func (m *fakeMisagent) Close() {}

type fakeDevice struct {
	afc       *fakeAFCClient
	instproxy *fakeInstproxy
	misagent  *fakeMisagent
}

func (d *fakeDevice) UDID() string { return "test" }
func (d *fakeDevice) NewLockdownSession(string) (idevice.LockdownSession, error) { return nil, nil }
func (d *fakeDevice) NewInstallationProxy(string) (idevice.InstallationProxy, error) {
	return d.instproxy, nil
}
func (d *fakeDevice) NewAFCClient(string) (idevice.AFCClient, error) { return d.afc, nil }
func (d *fakeDevice) NewMisagentClient(string) (idevice.MisagentClient, error) {
	return d.misagent, nil
}
func (d *fakeDevice) NewImageMounter(string) (idevice.ImageMounter, error) { return nil, nil }
func (d *fakeDevice) NewDebugServer(string) (idevice.DebugServer, error)  { return nil, nil }
func (d *fakeDevice) NewHeartbeatClient(string) (idevice.HeartbeatClient, error) {
	return nil, nil
}
func (d *fakeDevice) OpenCoreDeviceTunnel() (idevice.Tunnel, error) { return nil, nil }
func (d *fakeDevice) Close()                                       {}

func TestStageIPACreatesDirsAndWritesBytes(t *testing.T) {
	afc := newFakeAFCClient()
	device := &fakeDevice{afc: afc}

	payload := []byte("ipa-bytes")
	if err := StageIPA(device, log.NewNopLogger(), "com.example.app", payload); err != nil {
		t.Fatalf("StageIPA returned error: %v", err)
	}

	if !afc.dirs["PublicStaging"] {
		t.Error("expected PublicStaging directory to be created")
	}
	if !afc.dirs["PublicStaging/com.example.app"] {
		t.Error("expected bundle id directory to be created")
	}
	got := afc.written["PublicStaging/com.example.app/app.ipa"]
	if string(got) != string(payload) {
		t.Errorf("written bytes = %q, want %q", got, payload)
	}
}

func TestInstallIPAPassesClientOptions(t *testing.T) {
	instproxy := &fakeInstproxy{}
	device := &fakeDevice{instproxy: instproxy}

	if err := InstallIPA(device, log.NewNopLogger(), "com.example.app"); err != nil {
		t.Fatalf("InstallIPA returned error: %v", err)
	}
	if instproxy.installedPath != "PublicStaging/com.example.app/app.ipa" {
		t.Errorf("installedPath = %q", instproxy.installedPath)
	}
	if instproxy.installedOpts["CFBundleIdentifier"] != "com.example.app" {
		t.Errorf("installedOpts = %v", instproxy.installedOpts)
	}
}

func TestUninstallAppPropagatesFailure(t *testing.T) {
	instproxy := &fakeInstproxy{failUninstall: true}
	device := &fakeDevice{instproxy: instproxy}

	if err := UninstallApp(device, log.NewNopLogger(), "com.example.app"); err == nil {
		t.Fatal("expected error from failed uninstall")
	}
}
