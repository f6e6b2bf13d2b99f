package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// HostOf returns the origin host of address, the key used for per-host
// admission. The host is lower-cased and carries no port, so
// "http://Example.com:8080/a" and "https://example.com/b" share one gate.
//
// An address without a scheme or host cannot be crawled and yields an
// error wrapping ErrMalformedAddress.
func HostOf(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrMalformedAddress, address, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no origin host", ErrMalformedAddress, address)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: %q has no origin host", ErrMalformedAddress, address)
	}
	return host, nil
}
