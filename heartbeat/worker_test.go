// SPDX-License-Identifier: GPL-2.0-only

package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/jkcoxson/minimuxer/idevice"
)

type fakeHeartbeatClient struct {
	fail    bool
	receive chan struct{}
}

func (c *fakeHeartbeatClient) Receive(time.Duration) (interface{}, error) {
	if c.fail {
		return nil, errTest
	}
	select {
	case c.receive <- struct{}{}:
	default:
	}
	return map[string]interface{}{"Command": "Polo"}, nil
}

func (c *fakeHeartbeatClient) Send(interface{}) error {
	if c.fail {
		return errTest
	}
	return nil
}

func (c *fakeHeartbeatClient) Close() {}

var errTest = &testError{"induced failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestPumpSetsOKOnSuccessAndClearsOnFailure(t *testing.T) {
	var ok atomic.Bool
	w := NewWorker(nil, log.NewNopLogger(), &ok, nil)

	client := &fakeHeartbeatClient{receive: make(chan struct{}, 1)}
	done := make(chan struct{})
	go func() {
		w.pump(noopDevice{}, client)
		close(done)
	}()

	<-client.receive
	time.Sleep(10 * time.Millisecond)
	if !ok.Load() {
		t.Fatalf("expected ok to be true after a successful round-trip")
	}

	client.fail = true
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pump did not return after induced failure")
	}
	if ok.Load() {
		t.Fatalf("expected ok to be false after a failed round-trip")
	}
}

func TestPumpObservesMetricsOnSuccessAndFailure(t *testing.T) {
	var ok atomic.Bool
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	w := NewWorker(nil, log.NewNopLogger(), &ok, metrics)

	client := &fakeHeartbeatClient{receive: make(chan struct{}, 1)}
	done := make(chan struct{})
	go func() {
		w.pump(noopDevice{}, client)
		close(done)
	}()

	<-client.receive
	time.Sleep(10 * time.Millisecond)

	client.fail = true
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pump did not return after induced failure")
	}

	var success, failure dto.Metric
	if err := metrics.RoundTrips.WithLabelValues("success").Write(&success); err != nil {
		t.Fatalf("write success metric: %v", err)
	}
	if err := metrics.RoundTrips.WithLabelValues("failure").Write(&failure); err != nil {
		t.Fatalf("write failure metric: %v", err)
	}
	if got := success.Counter.GetValue(); got < 1 {
		t.Fatalf("success round-trips = %v, want >= 1", got)
	}
	if got := failure.Counter.GetValue(); got != 1 {
		t.Fatalf("failure round-trips = %v, want 1", got)
	}
}

type noopDevice struct{}

func (noopDevice) UDID() string                                        { return "test" }
func (noopDevice) NewLockdownSession(string) (idevice.LockdownSession, error)     { return nil, nil }
func (noopDevice) NewInstallationProxy(string) (idevice.InstallationProxy, error) { return nil, nil }
func (noopDevice) NewAFCClient(string) (idevice.AFCClient, error)                { return nil, nil }
func (noopDevice) NewMisagentClient(string) (idevice.MisagentClient, error)       { return nil, nil }
func (noopDevice) NewImageMounter(string) (idevice.ImageMounter, error)           { return nil, nil }
func (noopDevice) NewDebugServer(string) (idevice.DebugServer, error)             { return nil, nil }
func (noopDevice) NewHeartbeatClient(string) (idevice.HeartbeatClient, error)     { return nil, nil }
func (noopDevice) OpenCoreDeviceTunnel() (idevice.Tunnel, error)                  { return nil, nil }
func (noopDevice) Close()                                                        {}
