// SPDX-License-Identifier: GPL-2.0-only

package muxer

import "net"

// networkAddressSize matches the BSD sockaddr padding the real usbmuxd
// emits for a device's NetworkAddress property.
const networkAddressSize = 152

// encodeNetworkAddress packs ip into the 152-byte NetworkAddress structure:
// for IPv4, byte 0 is the struct length (0x10), byte 1 is AF_INET (0x02),
// and the address octets start at byte 4; for IPv6, byte 0 is 0x1C, byte 1
// is AF_INET6 (0x1E), and the address octets start at byte 8. Everything
// else is zero.
func encodeNetworkAddress(ip net.IP) [networkAddressSize]byte {
	var out [networkAddressSize]byte
	if v4 := ip.To4(); v4 != nil {
		out[0] = 0x10
		out[1] = 0x02
		copy(out[4:8], v4)
		return out
	}
	v6 := ip.To16()
	out[0] = 0x1C
	out[1] = 0x1E
	copy(out[8:24], v6)
	return out
}
