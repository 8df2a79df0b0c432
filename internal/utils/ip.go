package utils

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ParseIPv4 parses a dotted quad into its integer form.
func ParseIPv4(s string) (uint32, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if !addr.Is4() {
		return 0, fmt.Errorf("not an IPv4 address: %s", s)
	}
	return AddrToUint32(addr), nil
}

func AddrToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func Uint32ToAddr(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// PrefixBounds returns the first and last address of addr/bits and
// whether addr had host bits set.
func PrefixBounds(addr uint32, bits int) (lo, hi uint32, masked bool) {
	mask := PrefixMask(bits)
	lo = addr & mask
	hi = lo | ^mask
	return lo, hi, lo != addr
}

func PrefixMask(bits int) uint32 {
	if bits <= 0 {
		return 0
	}
	if bits >= 32 {
		return 0xFFFFFFFF
	}
	return ^uint32(0) << (32 - bits)
}

// MaskBits converts a dotted netmask like 255.255.255.0 into a prefix length.
func MaskBits(s string) (int, bool) {
	v, err := ParseIPv4(s)
	if err != nil {
		return 0, false
	}
	bits := 0
	for bits < 32 && v&(1<<(31-bits)) != 0 {
		bits++
	}
	if PrefixMask(bits) != v {
		return 0, false
	}
	return bits, true
}

// CIDRSize returns the number of addresses in a prefix of the given length.
func CIDRSize(bits int) uint64 {
	return 1 << (32 - bits)
}

// ExpandShortRangeEnd completes the abbreviated end of a range such as
// 10.220.240.100-124 by taking the missing leading octets from start.
func ExpandShortRangeEnd(start, end string) (string, bool) {
	so := strings.Split(start, ".")
	eo := strings.Split(end, ".")
	if len(so) != 4 || len(eo) == 0 || len(eo) > 4 {
		return "", false
	}
	for _, o := range eo {
		if n, err := strconv.Atoi(o); err != nil || n < 0 || n > 255 {
			return "", false
		}
	}
	full := append(append([]string{}, so[:4-len(eo)]...), eo...)
	return strings.Join(full, "."), true
}
