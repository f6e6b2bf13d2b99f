package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/webcrawler/internal/config"
)

// maxRedirects bounds redirect chains. The last response is returned as is
// once the limit is hit, which surfaces as ErrUnexpectedStatus.
const maxRedirects = 10

// checkProxyTimeout bounds the SOCKS5 handshake in CheckProxy. It is a
// connectivity check, not a request, so it is much shorter than a fetch.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 protocol constants.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5CmdConnect   = 0x01
	socks5AddrTypeName = 0x03

	// socks5ProbeHost is a reserved, never-resolvable name. CheckProxy only
	// needs the proxy to answer the CONNECT request, not to succeed.
	socks5ProbeHost = "webcrawler-probe.invalid"
)

// ValidateProxyAddress checks that address is in "host:port" form with a
// port between 1 and 65535.
func ValidateProxyAddress(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}
	return nil
}

// newTransport returns the base transport, dialing through the SOCKS5 proxy
// at proxyAddress when it is not empty.
//
// Design decision: The proxy dialer is created once per transport rather
// than per request. proxy.SOCKS5 does not connect, so creation never fails
// for a valid address and the transport's connection pool stays useful.
func newTransport(proxyAddress string) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if proxyAddress == "" {
		return transport, nil
	}

	if err := ValidateProxyAddress(proxyAddress); err != nil {
		return nil, err
	}
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	// An explicit SOCKS5 proxy replaces any environment HTTP proxy.
	transport.Proxy = nil
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return transport, nil
}

// newHTTPClient builds the client HTTPFetcher uses by default.
//
// Design decisions:
//   - A cookie jar keeps sessions across the pages of one site, so a login
//     cookie set by the seed survives into the pages below it.
//   - Redirects stop after maxRedirects to break loops.
func newHTTPClient(base http.RoundTripper, timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: base,
		Timeout:   timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// siteTransport wraps an http.RoundTripper to add the User-Agent and the
// headers and cookie configured for the request's host.
//
// Design decision: Settings are looked up per request by host rather than
// fixed on the client. A crawl crosses hosts, and a redirect to another
// host must not carry the first host's credentials with it.
type siteTransport struct {
	base      http.RoundTripper
	userAgent string
	sites     *config.File
}

// RoundTrip implements http.RoundTripper.
func (t *siteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	if t.sites != nil {
		site := t.sites.GetSiteConfig(strings.ToLower(req.URL.Hostname()))
		if site.Cookie != "" {
			if existing := clone.Header.Get("Cookie"); existing != "" {
				clone.Header.Set("Cookie", existing+"; "+site.Cookie)
			} else {
				clone.Header.Set("Cookie", site.Cookie)
			}
		}
		for key, value := range site.Headers {
			clone.Header.Set(key, value)
		}
	}

	return t.base.RoundTrip(clone)
}

// CheckProxy verifies that a SOCKS5 proxy is listening at address.
//
// The check performs the SOCKS5 greeting and a CONNECT to a reserved name.
// Any well-formed reply to the CONNECT counts as success; the proxy failing
// to reach the name is expected.
func CheckProxy(ctx context.Context, address string) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, no authentication.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}
	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		return readFailure(err)
	}
	if authResp[0] != socks5Version || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	// CONNECT: version, command, reserved, address type, name, port 80.
	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeName, byte(len(socks5ProbeHost))}
	req = append(req, socks5ProbeHost...)
	req = append(req, 0x00, 80)
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return readFailure(err)
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// readFailure classifies a failed handshake read.
func readFailure(err error) ProxyStatus {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}
