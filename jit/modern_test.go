// SPDX-License-Identifier: GPL-2.0-only

package jit

import (
	"testing"

	"github.com/go-kit/log"

	"github.com/jkcoxson/minimuxer/idevice"
)

type fakeRemoteXPCChannel struct {
	service  string
	messages []interface{}
	reads    int
	pid      uint32
}

func (c *fakeRemoteXPCChannel) ReadMessage() (interface{}, error) {
	c.reads++
	if c.service == dvtServiceName && c.reads == 2 {
		return map[string]interface{}{"PID": c.pid}, nil
	}
	return map[string]interface{}{}, nil
}

func (c *fakeRemoteXPCChannel) WriteMessage(v interface{}) error {
	c.messages = append(c.messages, v)
	return nil
}

func (c *fakeRemoteXPCChannel) Close() error { return nil }

type fakeTunnel struct {
	ports    map[string]int
	channels map[int]*fakeRemoteXPCChannel
}

func (t *fakeTunnel) DiscoverRemoteXPCPort(serviceName string) (int, error) {
	port, ok := t.ports[serviceName]
	if !ok {
		return 0, errTest
	}
	return port, nil
}

func (t *fakeTunnel) DialRemoteXPC(port int) (idevice.RemoteXPCChannel, error) {
	channel, ok := t.channels[port]
	if !ok {
		return nil, errTest
	}
	return channel, nil
}

func (t *fakeTunnel) Close() error { return nil }

func TestLaunchByAppIDModernSequence(t *testing.T) {
	dvtChannel := &fakeRemoteXPCChannel{service: dvtServiceName, pid: 777}
	debugChannel := &fakeRemoteXPCChannel{service: debugProxyServiceName}
	tunnel := &fakeTunnel{
		ports: map[string]int{dvtServiceName: 10, debugProxyServiceName: 20},
		channels: map[int]*fakeRemoteXPCChannel{
			10: dvtChannel,
			20: debugChannel,
		},
	}

	pid, err := launchViaDVT(tunnel, 10, "com.example.app", log.NewNopLogger())
	if err != nil {
		t.Fatalf("launchViaDVT returned error: %v", err)
	}
	if pid != 777 {
		t.Fatalf("pid = %d, want 777", pid)
	}
	if len(dvtChannel.messages) != 2 {
		t.Fatalf("expected launch + disable-memory-limit messages, got %d", len(dvtChannel.messages))
	}

	if err := detachViaDebugProxy(tunnel, 20, pid, log.NewNopLogger()); err != nil {
		t.Fatalf("detachViaDebugProxy returned error: %v", err)
	}
	// one vAttach + four D commands
	if len(debugChannel.messages) != 5 {
		t.Fatalf("expected 5 debug-proxy messages, got %d", len(debugChannel.messages))
	}
	first, ok := debugChannel.messages[0].(map[string]interface{})
	if !ok || first["Command"] != "vAttach" {
		t.Fatalf("first debug-proxy message = %v, want vAttach", debugChannel.messages[0])
	}
}

func TestPIDFromResponse(t *testing.T) {
	cases := []struct {
		fields map[string]interface{}
		wantOK bool
		want   uint32
	}{
		{map[string]interface{}{"PID": uint64(5)}, true, 5},
		{map[string]interface{}{"PID": int64(6)}, true, 6},
		{map[string]interface{}{"PID": int(7)}, true, 7},
		{map[string]interface{}{}, false, 0},
		{nil, false, 0},
	}
	for _, c := range cases {
		got, ok := pidFromResponse(c.fields)
		if ok != c.wantOK || got != c.want {
			t.Errorf("pidFromResponse(%v) = (%d, %v), want (%d, %v)", c.fields, got, ok, c.want, c.wantOK)
		}
	}
}
