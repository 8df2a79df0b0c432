package utils

import "testing"

func TestParseIPv4RoundTrip(t *testing.T) {
	v, err := ParseIPv4("192.168.1.255")
	if err != nil {
		t.Fatalf("expected valid IP, got %v", err)
	}
	if v != 0xC0A801FF {
		t.Fatalf("expected 0xC0A801FF, got %#x", v)
	}
	if got := Uint32ToAddr(v + 1).String(); got != "192.168.2.0" {
		t.Fatalf("expected increment across a byte boundary to be 192.168.2.0, got %s", got)
	}

	if _, err := ParseIPv4("2001:db8::1"); err == nil {
		t.Errorf("expected IPv6 to be rejected")
	}
	if _, err := ParseIPv4("10.0.0.256"); err == nil {
		t.Errorf("expected out of range octet to be rejected")
	}
}

func TestPrefixBounds(t *testing.T) {
	tests := []struct {
		name       string
		addr       string
		bits       int
		lo, hi     string
		wantMasked bool
	}{
		{"canonical /24", "10.0.0.0", 24, "10.0.0.0", "10.0.0.255", false},
		{"host bits set", "10.0.0.7", 29, "10.0.0.0", "10.0.0.7", true},
		{"default route", "0.0.0.0", 0, "0.0.0.0", "255.255.255.255", false},
		{"host route", "255.255.255.255", 32, "255.255.255.255", "255.255.255.255", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseIPv4(tt.addr)
			if err != nil {
				t.Fatalf("bad address %s: %v", tt.addr, err)
			}
			lo, hi, masked := PrefixBounds(a, tt.bits)
			if Uint32ToAddr(lo).String() != tt.lo || Uint32ToAddr(hi).String() != tt.hi || masked != tt.wantMasked {
				t.Errorf("got %s-%s masked=%v", Uint32ToAddr(lo), Uint32ToAddr(hi), masked)
			}
		})
	}
}

func TestMaskBits(t *testing.T) {
	if bits, ok := MaskBits("255.255.255.0"); !ok || bits != 24 {
		t.Errorf("expected /24, got %d %v", bits, ok)
	}
	if _, ok := MaskBits("255.0.255.0"); ok {
		t.Errorf("expected non-contiguous mask to be rejected")
	}
}

func TestCIDRSizeCalculatesCorrectly(t *testing.T) {
	if size := CIDRSize(24); size != 256 {
		t.Fatalf("expected /24 to have size 256, got %d", size)
	}
	if size := CIDRSize(0); size != 1<<32 {
		t.Fatalf("expected /0 to have size 2^32, got %d", size)
	}
}

func TestExpandShortRangeEnd(t *testing.T) {
	tests := []struct {
		start, end, want string
		ok               bool
	}{
		{"10.220.240.100", "124", "10.220.240.124", true},
		{"10.18.46.62", "69", "10.18.46.69", true},
		{"10.0.0.1", "1.5", "10.0.1.5", true},
		{"10.0.0.1", "300", "", false},
	}
	for _, tt := range tests {
		got, ok := ExpandShortRangeEnd(tt.start, tt.end)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExpandShortRangeEnd(%s, %s) = %q %v, want %q %v", tt.start, tt.end, got, ok, tt.want, tt.ok)
		}
	}
}
