package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "webcrawler"

	// DefaultDepth fetches the seed and the pages it links to.
	// Depth grows the crawl geometrically, so deeper crawls are opt-in.
	DefaultDepth = 2

	// DefaultDownloaders is the size of the download pool. Fetches are
	// network-bound, so this is well above the CPU count of most machines.
	DefaultDownloaders = 8

	// DefaultExtractors is the size of the link extraction pool.
	// Extraction is CPU-bound HTML parsing and rarely the bottleneck.
	DefaultExtractors = 4

	// DefaultPerHost caps concurrent fetches to one origin host.
	// Two keeps a crawl from hammering a single server while still
	// overlapping request latency.
	DefaultPerHost = 2

	// DefaultTimeout bounds one HTTP request, connection to last byte.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize of 1 crawls seeds one after another. The crawler
	// already runs fetches in parallel, and the per-host cap applies per
	// crawler, so concurrent seeds are opt-in.
	DefaultBatchSize = 1

	// DefaultUserAgent identifies the crawler in HTTP requests.
	// Using a descriptive User-Agent is good practice and allows operators
	// to identify crawler traffic in their logs.
	DefaultUserAgent = "webcrawler/1.0 (+https://github.com/nao1215/webcrawler)"

	// DefaultMaxBodySize limits the maximum response body size to read.
	// 5MB is sufficient for most HTML pages while preventing memory exhaustion
	// from unexpectedly large responses.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultCacheTTL is how long a cached page is served before it is
	// fetched again.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultMemoryCacheMB is the in-memory page cache size in megabytes.
	DefaultMemoryCacheMB = 256

	// DefaultRateBurst lets a host take one request per PerHost slot at once.
	DefaultRateBurst = DefaultPerHost
)

// Config holds all configuration options for the crawler.
// This struct is designed to be populated from CLI flags and passed through
// the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, CacheConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// Seeds are the addresses to start crawling from.
	// Each seed gets its own crawl and its own report.
	Seeds []string

	// Depth is the number of levels to fetch: 1 is the seed only.
	Depth int

	// Downloaders is the number of concurrent fetches across all hosts.
	Downloaders int

	// Extractors is the number of concurrent link extractions.
	Extractors int

	// PerHost is the number of concurrent fetches allowed per origin host.
	PerHost int

	// Timeout is the timeout for each HTTP request.
	// This applies to individual requests, not the overall crawl.
	Timeout time.Duration

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// LogJSON writes log records as JSON lines instead of text.
	LogJSON bool

	// BatchSize is the number of seeds crawled concurrently.
	BatchSize int

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	// When empty, requests go out directly.
	ProxyAddress string

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .webcrawler in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	// This is populated by LoadConfigFile and used while fetching.
	SiteConfigs *File

	// JSONReport enables JSON report output instead of human-readable format.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output instead of human-readable format.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	// Directories are created automatically if they don't exist.
	ReportFile string

	// DBDir is the directory of the history database.
	// Defaults to the XDG data directory (~/.local/share/webcrawler on Linux).
	DBDir string

	// SaveToDB indicates whether crawl reports are saved to history.
	SaveToDB bool

	// UseCache enables the page cache (memory tier plus disk tier).
	UseCache bool

	// CacheDir is the directory of the on-disk page cache.
	// Defaults to the XDG cache directory (~/.cache/webcrawler on Linux).
	CacheDir string

	// CacheTTL is how long cached pages stay fresh.
	CacheTTL time.Duration

	// MemoryCacheMB is the in-memory cache size in megabytes.
	MemoryCacheMB int

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Responses larger than this are truncated to prevent memory exhaustion.
	// Set to 0 to use the default (5MB).
	MaxBodySize int64

	// ObeyRobots skips addresses that the host's robots.txt disallows.
	ObeyRobots bool

	// RatePerHost is the number of requests per second allowed to one host.
	// Zero disables rate limiting; the PerHost cap still applies.
	RatePerHost float64

	// RateBurst is the number of requests a host may receive at once
	// before RatePerHost applies.
	RateBurst int
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., pool sizes, timeouts).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Depth:         DefaultDepth,
		Downloaders:   DefaultDownloaders,
		Extractors:    DefaultExtractors,
		PerHost:       DefaultPerHost,
		Timeout:       DefaultTimeout,
		BatchSize:     DefaultBatchSize,
		DBDir:         XDGDataDir(),
		SaveToDB:      true,
		UseCache:      true,
		CacheDir:      XDGCacheDir(),
		CacheTTL:      DefaultCacheTTL,
		MemoryCacheMB: DefaultMemoryCacheMB,
		UserAgent:     DefaultUserAgent,
		MaxBodySize:   DefaultMaxBodySize,
		RateBurst:     DefaultRateBurst,
	}
}

// XDGDataDir returns the XDG data directory for the crawler.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/webcrawler
// On macOS: ~/Library/Application Support/webcrawler
// On Windows: %LOCALAPPDATA%\webcrawler
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for the crawler.
// On Linux: ~/.config/webcrawler
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for the crawler.
// On Linux: ~/.cache/webcrawler
// On macOS: ~/Library/Caches/webcrawler
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any crawling begins.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}

	if c.Depth < 1 {
		return ErrInvalidDepth
	}

	if c.Downloaders < 1 {
		return ErrInvalidDownloaders
	}

	if c.Extractors < 1 {
		return ErrInvalidExtractors
	}

	if c.PerHost < 1 {
		return ErrInvalidPerHost
	}

	// Timeout must be positive; zero timeout would cause immediate failures
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	// JSONReport and MarkdownReport are mutually exclusive
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.UseCache && c.CacheTTL <= 0 {
		return ErrInvalidCacheTTL
	}

	if c.RatePerHost < 0 || (c.RatePerHost > 0 && c.RateBurst < 1) {
		return ErrInvalidRate
	}

	return nil
}

// SiteConfigFor returns the merged site configuration for host.
// It returns the zero SiteConfig when no config file was loaded.
func (c *Config) SiteConfigFor(host string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(host)
}

// DepthFor returns the crawl depth for seedHost: the site override when
// one is configured, the global Depth otherwise.
func (c *Config) DepthFor(seedHost string) int {
	if depth := c.SiteConfigFor(seedHost).Depth; depth > 0 {
		return depth
	}
	return c.Depth
}
