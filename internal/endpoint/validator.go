// Package endpoint validates the ingest URL supplied at client
// construction, screening out SSRF-prone shapes: non-HTTP(S) schemes,
// embedded credentials, and private address literals.
package endpoint

import (
	"fmt"
	"net/url"

	"github.com/beaconhq/beacon-go/internal/address"
)

var localHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// Validate parses raw as a URL and rejects it unless it is a well-formed,
// non-credentialed http(s) URL whose host is not a private-address
// literal. On success it returns raw unchanged; normalization here is
// cosmetic only, so the caller's exact string is preserved.
func Validate(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("endpoint must not be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("endpoint is not a valid URL: %w", err)
	}

	if u.Host == "" {
		return "", fmt.Errorf("endpoint must include a host")
	}

	if u.User != nil {
		return "", fmt.Errorf("endpoint must not embed credentials")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("endpoint scheme must be http or https, got %q", u.Scheme)
	}

	host := u.Hostname()

	// localhost/127.0.0.1/::1 are the one exception that may use plain
	// http and are not subject to the private-address screen below — the
	// screen exists to stop an operator-supplied endpoint from pointing at
	// infrastructure on the private network, not to block local dev.
	if localHosts[host] {
		return raw, nil
	}

	if u.Scheme != "https" {
		return "", fmt.Errorf("endpoint scheme must be https for non-local host %q", host)
	}

	if address.IsPrivate(host) {
		return "", fmt.Errorf("endpoint host %q is a private address", host)
	}

	return raw, nil
}
