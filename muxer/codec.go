// SPDX-License-Identifier: GPL-2.0-only

// Package muxer implements the usbmuxd wire protocol: a length-prefixed
// plist framing (Packet Codec) and the loopback server that answers the
// subset of message types libimobiledevice-style clients actually issue
// (Mux Server).
package muxer

import (
	"encoding/binary"

	"github.com/efficientgo/core/errors"
	"howett.net/plist"
)

const (
	headerSize = 16

	// wireVersion and wirePlistType are the only version/message-type
	// values minimuxer ever emits; real usbmuxd speaks others, but
	// nothing that reaches this shim needs them.
	wireVersion   = 1
	wirePlistType = 8
)

// Header is the 16-byte little-endian frame header preceding every plist
// body on the wire.
type Header struct {
	TotalLength uint32
	Version     uint32
	MessageType uint32
	Tag         uint32
}

// Packet is a fully decoded frame: the tag to echo back and the plist body,
// already unmarshaled into a generic map.
type Packet struct {
	Tag  uint32
	Body map[string]interface{}
}

// Decode parses a complete frame out of buf. It returns ErrShortBuffer if
// buf doesn't yet contain a full header, or if the header claims more body
// bytes than buf holds — the caller is expected to read more and retry, per
// the short-read tolerance in the component's contract.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < headerSize {
		return Packet{}, errShortBuffer
	}
	h := Header{
		TotalLength: binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		MessageType: binary.LittleEndian.Uint32(buf[8:12]),
		Tag:         binary.LittleEndian.Uint32(buf[12:16]),
	}
	if int(h.TotalLength) < headerSize {
		return Packet{}, errors.Newf("malformed packet: total_length %d shorter than header", h.TotalLength)
	}
	bodyLen := int(h.TotalLength) - headerSize
	if len(buf) < headerSize+bodyLen {
		return Packet{}, errShortBuffer
	}

	var body map[string]interface{}
	if err := plist.Unmarshal(buf[headerSize:headerSize+bodyLen], &body); err != nil {
		return Packet{}, errors.Wrap(err, "failed to decode packet body plist")
	}
	return Packet{Tag: h.Tag, Body: body}, nil
}

// errShortBuffer signals Decode was given fewer bytes than the header
// claims; callers outside the package test for it with IsShortBuffer.
var errShortBuffer = errors.New("short buffer")

// IsShortBuffer reports whether err indicates the caller should read more
// bytes and retry Decode.
func IsShortBuffer(err error) bool {
	return errors.Is(err, errShortBuffer)
}

// Encode serializes body as a binary plist and wraps it in a reply frame
// with version=1, message_type=8, and the given tag.
func Encode(body map[string]interface{}, tag uint32) ([]byte, error) {
	data, err := plist.Marshal(body, plist.BinaryFormat)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode packet body plist")
	}

	out := make([]byte, headerSize+len(data))
	binary.LittleEndian.PutUint32(out[0:4], uint32(headerSize+len(data)))
	binary.LittleEndian.PutUint32(out[4:8], wireVersion)
	binary.LittleEndian.PutUint32(out[8:12], wirePlistType)
	binary.LittleEndian.PutUint32(out[12:16], tag)
	copy(out[headerSize:], data)
	return out, nil
}
