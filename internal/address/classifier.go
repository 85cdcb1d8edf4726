// Package address decides whether a textual host falls inside a private
// or reserved IP range. It is a literal check only: DNS names are never
// resolved, so a hostname that happens to resolve to a private address is
// not caught here — that is a deliberate scope boundary, not an oversight.
package address

import "net/netip"

var privateV4 = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
}

var privateV6 = []netip.Prefix{
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// IsPrivate reports whether host parses as an IP literal inside any
// private/reserved range. Non-IP inputs (DNS names, malformed literals)
// return false.
func IsPrivate(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	if addr.Is4In6() {
		addr = addr.Unmap()
	}

	if addr.Is4() {
		return matchesAny(addr, privateV4)
	}
	return matchesAny(addr, privateV6)
}

func matchesAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
