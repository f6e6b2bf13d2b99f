package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/model"
)

// PageFetcher retrieves a single page.
type PageFetcher interface {
	FetchPage(ctx context.Context, address string) (*model.Page, error)
}

// HTTPFetcher fetches pages over HTTP. It is safe for concurrent use.
type HTTPFetcher struct {
	client       *http.Client
	timeout      time.Duration
	userAgent    string
	maxBodySize  int64
	proxyAddress string
	sites        *config.File
	logger       *slog.Logger

	obeyRobots bool
	robots     *robotsAgent
	ratePerSec float64
	rateBurst  int
	limiter    *hostLimiter
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTimeout bounds each request. The default is config.DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(userAgent string) Option {
	return func(f *HTTPFetcher) {
		f.userAgent = userAgent
	}
}

// WithMaxBodySize limits how much of a response body is read. Longer bodies
// are truncated, not rejected.
func WithMaxBodySize(size int64) Option {
	return func(f *HTTPFetcher) {
		f.maxBodySize = size
	}
}

// WithProxy routes every connection through the SOCKS5 proxy at address
// ("host:port").
func WithProxy(address string) Option {
	return func(f *HTTPFetcher) {
		f.proxyAddress = address
	}
}

// WithSites applies the per-host headers, cookies and link patterns of a
// configuration file.
func WithSites(sites *config.File) Option {
	return func(f *HTTPFetcher) {
		f.sites = sites
	}
}

// WithHTTPClient replaces the default client. Its transport is still
// wrapped to add per-site headers; WithProxy and WithTimeout are ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithRobots makes the fetcher refuse URLs that the host's robots.txt
// disallows for the configured User-Agent.
func WithRobots() Option {
	return func(f *HTTPFetcher) {
		f.obeyRobots = true
	}
}

// WithRateLimit allows at most perSecond requests per second to each host,
// with bursts of up to burst requests. A non-positive rate disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *HTTPFetcher) {
		f.ratePerSec = perSecond
		f.rateBurst = burst
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewHTTPFetcher creates a fetcher. It fails only for an invalid proxy
// address; it does not check that the proxy is reachable. Use CheckProxy
// for that.
func NewHTTPFetcher(opts ...Option) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		timeout:     config.DefaultTimeout,
		userAgent:   config.DefaultUserAgent,
		maxBodySize: config.DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxBodySize <= 0 {
		f.maxBodySize = model.MaxPageSize
	}

	if f.client == nil {
		transport, err := newTransport(f.proxyAddress)
		if err != nil {
			return nil, err
		}
		f.client = newHTTPClient(transport, f.timeout)
	} else {
		// Copy so the caller's client keeps its own transport.
		client := *f.client
		f.client = &client
	}

	base := f.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	f.client.Transport = &siteTransport{
		base:      base,
		userAgent: f.userAgent,
		sites:     f.sites,
	}

	if f.obeyRobots {
		f.robots = newRobotsAgent(f.client, f.userAgent)
	}
	if f.ratePerSec > 0 {
		f.limiter = newHostLimiter(f.ratePerSec, f.rateBurst)
	}
	return f, nil
}

// FetchPage GETs address and returns the response as a page. A non-2xx
// status is an error wrapping ErrUnexpectedStatus and a URL excluded by
// robots.txt one wrapping ErrDisallowedByRobots.
func (f *HTTPFetcher) FetchPage(ctx context.Context, address string) (*model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", address, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	if f.robots != nil && !f.robots.Allowed(ctx, req.URL) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedByRobots, address)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, req.URL.Hostname()); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", address, err)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best effort
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, address)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", address, err)
	}

	page := &model.Page{
		URL:         address,
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now(),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if final := resp.Request.URL.String(); final != address {
			page.FinalURL = final
		}
	}
	page.ComputeHash()

	f.logger.Debug("fetched page",
		"url", address,
		"status", resp.StatusCode,
		"bytes", len(body),
	)
	return page, nil
}

// Fetch implements crawler.Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, address string) (crawler.Document, error) {
	page, err := f.FetchPage(ctx, address)
	if err != nil {
		return nil, err
	}
	return NewDocument(page, f.sites), nil
}
