// SPDX-License-Identifier: GPL-2.0-only

package muxer

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

func testServer(t *testing.T, udid string) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	pairing := PairingRecord{
		UDID: udid,
		Raw:  map[string]interface{}{"UDID": udid},
	}
	return NewServer(pairing, log.NewNopLogger(), NewMetrics(reg))
}

func TestDeviceListReplyShape(t *testing.T) {
	s := testServer(t, "ABCDEF")
	reply, messageType, ok := s.handlePacket(Packet{Tag: 7, Body: map[string]interface{}{
		"MessageType": "ListDevices",
	}})
	if !ok {
		t.Fatalf("expected ListDevices to be handled")
	}
	if messageType != "ListDevices" {
		t.Fatalf("messageType = %q", messageType)
	}

	list, ok := reply["DeviceList"].([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("DeviceList = %v, want exactly one entry", reply["DeviceList"])
	}
	entry := list[0].(map[string]interface{})
	if entry["DeviceID"] != virtualDeviceID {
		t.Errorf("DeviceID = %v, want %d", entry["DeviceID"], virtualDeviceID)
	}
	props := entry["Properties"].(map[string]interface{})
	if props["SerialNumber"] != "ABCDEF" {
		t.Errorf("SerialNumber = %v, want ABCDEF", props["SerialNumber"])
	}
	netAddr := props["NetworkAddress"].([]byte)
	if len(netAddr) != networkAddressSize {
		t.Fatalf("NetworkAddress length = %d, want %d", len(netAddr), networkAddressSize)
	}
	want := []byte{0x10, 0x02, 0x00, 0x00, 10, 7, 0, 1}
	for i, b := range want {
		if netAddr[i] != b {
			t.Errorf("NetworkAddress[%d] = %#x, want %#x", i, netAddr[i], b)
		}
	}
	for i := len(want); i < networkAddressSize; i++ {
		if netAddr[i] != 0 {
			t.Errorf("NetworkAddress[%d] = %#x, want 0", i, netAddr[i])
		}
	}
}

func TestUnknownMessageTypeIgnored(t *testing.T) {
	s := testServer(t, "ABCDEF")
	_, _, ok := s.handlePacket(Packet{Tag: 1, Body: map[string]interface{}{
		"MessageType": "ReadBUID",
	}})
	if ok {
		t.Fatalf("expected unknown message type to be rejected")
	}
}
