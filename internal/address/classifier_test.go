package address

import "testing"

func TestIsPrivate_True(t *testing.T) {
	hosts := []string{
		"10.0.0.1", "10.255.255.255",
		"172.16.0.1", "172.31.255.255",
		"192.168.0.1", "192.168.255.255",
		"100.64.0.1", "100.127.255.255",
		"127.0.0.1", "0.0.0.0",
		"169.254.1.1",
		"::1", "fe80::1",
		"::ffff:10.0.0.1", "::ffff:192.168.1.1",
	}
	for _, h := range hosts {
		if !IsPrivate(h) {
			t.Errorf("IsPrivate(%q) = false, want true", h)
		}
	}
}

func TestIsPrivate_False(t *testing.T) {
	hosts := []string{"8.8.8.8", "1.1.1.1", "203.0.113.1", "example.com"}
	for _, h := range hosts {
		if IsPrivate(h) {
			t.Errorf("IsPrivate(%q) = true, want false", h)
		}
	}
}

func TestIsPrivate_MalformedLiteral(t *testing.T) {
	hosts := []string{"", "not-an-ip", "999.999.999.999", "10.0.0"}
	for _, h := range hosts {
		if IsPrivate(h) {
			t.Errorf("IsPrivate(%q) = true, want false", h)
		}
	}
}
