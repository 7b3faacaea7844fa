package audit

import (
	"strconv"
	"strings"
)

// IsIPInCIDR reports whether the IPv4 address ip falls inside the CIDR
// range given as "<addr>/<bits>". Only IPv4 is supported; malformed
// input yields false.
func IsIPInCIDR(ip, cidr string) bool {
	addr, bitsStr, ok := strings.Cut(cidr, "/")
	if !ok {
		return false
	}
	bits, err := strconv.Atoi(bitsStr)
	if err != nil || bits < 0 || bits > 32 {
		return false
	}

	ipVal, ok := ipToUint32(ip)
	if !ok {
		return false
	}
	addrVal, ok := ipToUint32(addr)
	if !ok {
		return false
	}

	var mask uint32
	if bits > 0 {
		mask = ^uint32(0) << (32 - bits)
	}
	return ipVal&mask == addrVal&mask
}

// ipToUint32 folds a dotted-quad IPv4 address into a 32-bit integer.
func ipToUint32(ip string) (uint32, bool) {
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return 0, false
	}
	var val uint32
	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return 0, false
		}
		val = val<<8 | uint32(n)
	}
	return val, true
}
