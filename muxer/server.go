// SPDX-License-Identifier: GPL-2.0-only

package muxer

import (
	"net"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"howett.net/plist"
)

const (
	// ListenAddress is the loopback address the real usbmuxd daemon
	// binds; clients that consult USBMUXD_SOCKET_ADDRESS are pointed
	// here by shim.TargetMuxAddress.
	ListenAddress = "127.0.0.1:27015"

	// Virtual device descriptor constants (spec.md §3): arbitrary but
	// stable for the life of the process, chosen to match the values
	// libimobiledevice-style clients are observed tolerating.
	virtualDeviceID    = 420
	virtualIfaceIndex  = 69
	escapedServiceName = "yurmomlolllllll"

	readBufSize = 0xfff

	acceptRetryLimit    = 50
	acceptRetryInterval = 5 * time.Millisecond
	rebindInterval      = 50 * time.Millisecond
)

var lockdownDeviceIP = net.ParseIP("10.7.0.1")

// Metrics holds the Prometheus collectors the server increments; callers
// construct it once and register it with their own registry.
type Metrics struct {
	Connections prometheus.Counter
	Rebinds     prometheus.Counter
	Replies     *prometheus.CounterVec
}

// NewMetrics builds a Metrics set registered under reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minimuxer_mux_connections_total",
			Help: "Total TCP connections accepted by the mux server.",
		}),
		Rebinds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minimuxer_mux_rebinds_total",
			Help: "Total times the mux server dropped and rebound its listener.",
		}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minimuxer_mux_replies_total",
			Help: "Replies sent by the mux server, by message type.",
		}, []string{"message_type"}),
	}
	reg.MustRegister(m.Connections, m.Rebinds, m.Replies)
	return m
}

// PairingRecord is the opaque plist dictionary supplied at start. Only UDID
// is read by the server; every other key is forwarded verbatim to
// ReadPairRecord replies.
type PairingRecord struct {
	UDID   string
	Raw    map[string]interface{}
	RawXML []byte
}

// Server is the single-threaded accept loop described as C2 in the
// component design: it owns the loopback listener and answers ListDevices,
// Listen, and ReadPairRecord requests from a stable in-memory pairing
// record. It never touches the device itself.
type Server struct {
	pairing PairingRecord
	logger  log.Logger
	metrics *Metrics
}

// NewServer builds a Server bound to pairing; it does not listen until Run
// is called.
func NewServer(pairing PairingRecord, logger log.Logger, metrics *Metrics) *Server {
	return &Server{pairing: pairing, logger: logger, metrics: metrics}
}

// Run binds ListenAddress and serves forever, applying the bind-recovery
// discipline from spec.md §4.2: on accept failure, retry up to
// acceptRetryLimit times at acceptRetryInterval; beyond that, drop the
// listener and rebind in a loop at rebindInterval until it succeeds.
//
// Run only returns if ListenAddress cannot be bound at all on the first
// attempt.
func (s *Server) Run() error {
	listener, err := net.Listen("tcp", ListenAddress)
	if err != nil {
		return err
	}

	retries := 0
	for {
		conn, err := listener.Accept()
		if err != nil {
			retries++
			time.Sleep(acceptRetryInterval)
			if retries < acceptRetryLimit {
				continue
			}

			level.Warn(s.logger).Log("msg", "minimuxer is rebinding to the muxer socket")
			s.metrics.Rebinds.Inc()
			_ = listener.Close()
			listener = s.rebind()
			level.Info(s.logger).Log("msg", "minimuxer has bound successfully")
			retries = 0
			continue
		}
		retries = 0
		s.metrics.Connections.Inc()
		s.handleConn(conn)
	}
}

func (s *Server) rebind() net.Listener {
	for {
		listener, err := net.Listen("tcp", ListenAddress)
		if err == nil {
			return listener
		}
		time.Sleep(rebindInterval)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, readBufSize)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}

	// Edge case (spec.md §4.1): some clients deliver only the 16-byte
	// header in the first read and the body in a second.
	if n == headerSize {
		buf2 := make([]byte, readBufSize)
		n2, err := conn.Read(buf2)
		if err != nil {
			return
		}
		n += copy(buf[n:], buf2[:n2])
	}

	packet, err := Decode(buf[:n])
	if err != nil {
		level.Debug(s.logger).Log("msg", "failed to decode inbound packet", "err", err)
		return
	}

	reply, messageType, ok := s.handlePacket(packet)
	if !ok {
		level.Debug(s.logger).Log("msg", "ignoring unsupported message type", "type", messageType)
		return
	}

	out, err := Encode(reply, packet.Tag)
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to encode reply", "err", err)
		return
	}
	if _, err := conn.Write(out); err != nil {
		level.Debug(s.logger).Log("msg", "failed to write reply", "err", err)
		return
	}
	s.metrics.Replies.WithLabelValues(messageType).Inc()
}

func (s *Server) handlePacket(packet Packet) (reply map[string]interface{}, messageType string, ok bool) {
	messageType, _ = packet.Body["MessageType"].(string)

	switch messageType {
	case "ListDevices", "Listen":
		return s.deviceListReply(), messageType, true
	case "ReadPairRecord":
		return s.pairRecordReply(), messageType, true
	default:
		return nil, messageType, false
	}
}

func (s *Server) deviceListReply() map[string]interface{} {
	netAddr := encodeNetworkAddress(lockdownDeviceIP)
	properties := map[string]interface{}{
		"ConnectionType":         "Network",
		"DeviceID":               virtualDeviceID,
		"EscapedFullServiceName": escapedServiceName,
		"InterfaceIndex":         virtualIfaceIndex,
		"NetworkAddress":         netAddr[:],
		"SerialNumber":           s.pairing.UDID,
	}
	entry := map[string]interface{}{
		"DeviceID":    virtualDeviceID,
		"MessageType": "Attached",
		"Properties":  properties,
	}
	return map[string]interface{}{
		"DeviceList": []interface{}{entry},
	}
}

func (s *Server) pairRecordReply() map[string]interface{} {
	data, err := plist.Marshal(s.pairing.Raw, plist.BinaryFormat)
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to re-encode pairing record", "err", err)
		data = nil
	}
	return map[string]interface{}{
		"PairRecordData": data,
	}
}
