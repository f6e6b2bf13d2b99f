package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/webcrawler/internal/cache"
	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/database"
	"github.com/nao1215/webcrawler/internal/fetcher"
	applog "github.com/nao1215/webcrawler/internal/log"
	"github.com/nao1215/webcrawler/internal/model"
	"github.com/nao1215/webcrawler/internal/pipeline"
	"github.com/nao1215/webcrawler/internal/report"
)

// expectedNewPages sizes the disk cache filter for pages added this run.
const expectedNewPages = 10000

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url> [url...]",
		Short: "Crawl web sites from seed addresses",
		Long: `Crawl fetches each seed address and follows its links breadth-first.

Depth 1 fetches only the seed, depth 2 also fetches the pages the seed links
to, and so on. Every address is fetched at most once per crawl. Failed
addresses are reported with their error and do not stop the crawl.

Interrupting the command (Ctrl+C) stops the crawl and prints what was
fetched so far.

Examples:
  # Crawl a site two levels deep
  webcrawler crawl https://example.com/

  # Crawl deeper with more workers but only one request per host at a time
  webcrawler crawl -d 4 --downloaders 16 --per-host 1 https://example.com/

  # Be polite: honour robots.txt and send at most 2 requests per second
  webcrawler crawl --robots --rate 2 https://example.com/

  # Crawl through a SOCKS5 proxy
  webcrawler crawl --proxy 127.0.0.1:9050 https://example.com/

  # Write a Markdown report to a file
  webcrawler crawl -m -o report.md https://example.com/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl shape flags
	cmd.Flags().IntP("depth", "d", config.DefaultDepth,
		"Number of levels to fetch (1 fetches only the seed)")
	cmd.Flags().Int("downloaders", config.DefaultDownloaders,
		"Number of concurrent downloads")
	cmd.Flags().Int("extractors", config.DefaultExtractors,
		"Number of concurrent link extractions")
	cmd.Flags().Int("per-host", config.DefaultPerHost,
		"Number of concurrent downloads allowed per host")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")

	// Request flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:9050)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes (longer bodies are truncated)")
	cmd.Flags().Bool("robots", false,
		"Skip addresses disallowed by the host's robots.txt")
	cmd.Flags().Float64("rate", 0,
		"Maximum requests per second to one host (0 disables rate limiting)")
	cmd.Flags().Int("burst", config.DefaultRateBurst,
		"Requests a host may receive at once before --rate applies")

	// Storage flags
	cmd.Flags().Bool("no-cache", false,
		"Do not read or write the page cache")
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL,
		"How long cached pages are reused")
	cmd.Flags().String("cache-dir", "",
		"Page cache directory (default: XDG cache directory)")
	cmd.Flags().Bool("no-history", false,
		"Do not save crawl reports to the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .webcrawler in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("log-json", false,
		"Write logs to stderr as JSON lines")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := applog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	if cfg.LogJSON {
		logger = applog.NewSecureJSONLogger(cmd.ErrOrStderr(), cfg.Verbose)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Depth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.Downloaders, err = flags.GetInt("downloaders"); err != nil {
		return nil, err
	}
	if cfg.Extractors, err = flags.GetInt("extractors"); err != nil {
		return nil, err
	}
	if cfg.PerHost, err = flags.GetInt("per-host"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ObeyRobots, err = flags.GetBool("robots"); err != nil {
		return nil, err
	}
	if cfg.RatePerHost, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = flags.GetInt("burst"); err != nil {
		return nil, err
	}

	noCache, err := flags.GetBool("no-cache")
	if err != nil {
		return nil, err
	}
	cfg.UseCache = !noCache
	if cfg.CacheTTL, err = flags.GetDuration("cache-ttl"); err != nil {
		return nil, err
	}
	if dir, err := flags.GetString("cache-dir"); err != nil {
		return nil, err
	} else if dir != "" {
		cfg.CacheDir = dir
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	if dir, err := flags.GetString("db-dir"); err != nil {
		return nil, err
	} else if dir != "" {
		cfg.DBDir = dir
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	for _, arg := range args {
		seed, err := normalizeSeed(arg)
		if err != nil {
			return nil, err
		}
		cfg.Seeds = append(cfg.Seeds, seed)
	}

	return cfg, nil
}

// loadSiteConfigs loads the configuration file. A missing file is an error
// only when its path was given explicitly.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("configuration file not found: %s", explicitPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	sites, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return sites, nil
}

// normalizeSeed adds "http://" to a bare host and normalizes the address
// the way extracted links are, so a seed and a link to it are one address.
func normalizeSeed(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid seed %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid seed %q: scheme must be http or https", raw)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid seed %q: missing host", raw)
	}
	return fetcher.Normalize(u), nil
}

// runCrawl executes the crawl of every seed.
func runCrawl(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"seeds", cfg.Seeds,
		"depth", cfg.Depth,
		"downloaders", cfg.Downloaders,
		"extractors", cfg.Extractors,
		"perHost", cfg.PerHost,
		"batchSize", cfg.BatchSize,
	)

	if cfg.ProxyAddress != "" {
		if status := fetcher.CheckProxy(ctx, cfg.ProxyAddress); status != fetcher.ProxyStatusOK {
			return fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, status.Err())
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}

	f, closeFetcher, err := buildFetcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	var saver pipeline.ReportSaver
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
		saver = db
		logger.Info("history database opened", "path", db.Path())
	}

	c, err := crawler.New(f, cfg.Downloaders, cfg.Extractors, cfg.PerHost, crawler.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}
	defer c.Close()

	out, closeOutput, err := openOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer closeOutput()
	writer := newReportWriter(cfg, out)

	limits := pipeline.Limits{Downloaders: cfg.Downloaders, Extractors: cfg.Extractors, PerHost: cfg.PerHost}
	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return pipeline.DefaultPipeline(c, saver, limits, pipeline.WithLogger(logger))
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
		pipeline.WithDepth(func(seed string) int {
			host, err := crawler.HostOf(seed)
			if err != nil {
				return cfg.Depth
			}
			return cfg.DepthFor(host)
		}),
	)

	startTime := time.Now()
	var (
		mu      sync.Mutex
		reports = make([]*model.CrawlReport, len(cfg.Seeds))
		failed  bool
	)
	batchErr := bp.ProcessBatchWithCallback(ctx, cfg.Seeds, func(r *model.CrawlReport, index int) {
		mu.Lock()
		defer mu.Unlock()

		reports[index] = r
		if r.Error != "" {
			failed = true
		}
		if _, err := writer.Write(r); err != nil {
			logger.Error("failed to write report", "seed", r.Seed, "error", err)
		}
	})

	if len(cfg.Seeds) > 1 {
		if _, err := writer.WriteSummary(reports); err != nil {
			logger.Error("failed to write summary", "error", err)
		}
	}

	logger.Info("crawl finished", "elapsed", time.Since(startTime).Round(time.Millisecond))

	if batchErr != nil {
		return batchErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed {
		return errors.New("one or more crawls failed")
	}
	return nil
}

// buildFetcher assembles the fetch chain: HTTP, optionally behind the page
// cache (bigcache in front of the SQLite page table). The returned function
// releases the cache.
func buildFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (crawler.Fetcher, func(), error) {
	opts := []fetcher.Option{
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithSites(cfg.SiteConfigs),
		fetcher.WithLogger(logger),
	}
	if cfg.ProxyAddress != "" {
		opts = append(opts, fetcher.WithProxy(cfg.ProxyAddress))
	}
	if cfg.ObeyRobots {
		opts = append(opts, fetcher.WithRobots())
	}
	if cfg.RatePerHost > 0 {
		opts = append(opts, fetcher.WithRateLimit(cfg.RatePerHost, cfg.RateBurst))
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create fetcher: %w", err)
	}
	if !cfg.UseCache {
		return httpFetcher, func() {}, nil
	}

	memory, err := cache.NewMemoryStore(ctx, cache.MemoryOptions{
		TTL:       cfg.CacheTTL,
		MaxSizeMB: cfg.MemoryCacheMB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	pages, err := database.Open(cfg.CacheDir, database.DefaultOptions())
	if err != nil {
		_ = memory.Close() //nolint:errcheck // best effort cleanup
		return nil, nil, fmt.Errorf("failed to open page cache: %w", err)
	}

	if removed, err := pages.PrunePages(ctx, cfg.CacheTTL); err != nil {
		logger.Warn("failed to prune page cache", "error", err)
	} else if removed > 0 {
		logger.Debug("pruned page cache", "removed", removed)
	}

	known, err := pages.PageURLs(ctx)
	if err != nil {
		// Without the known addresses the filter would hide stored pages.
		logger.Warn("failed to list cached pages; disk cache is write-only this run", "error", err)
		known = nil
	}

	store := cache.NewTiered(logger,
		memory,
		cache.NewBloomGuard(pages, uint(len(known))+expectedNewPages, known),
	)

	cachingFetcher, err := fetcher.NewCachingFetcher(httpFetcher, store,
		fetcher.WithCacheTTL(cfg.CacheTTL),
		fetcher.WithCacheSites(cfg.SiteConfigs),
		fetcher.WithCacheLogger(logger),
	)
	if err != nil {
		_ = memory.Close() //nolint:errcheck // best effort cleanup
		_ = pages.Close()  //nolint:errcheck // best effort cleanup
		return nil, nil, err
	}

	cleanup := func() {
		stats := cachingFetcher.Stats()
		logger.Info("page cache", "hits", stats.Hits, "misses", stats.Misses, "memoryEntries", memory.Len())
		if err := memory.Close(); err != nil {
			logger.Warn("failed to close memory cache", "error", err)
		}
		if err := pages.Close(); err != nil {
			logger.Warn("failed to close page cache", "error", err)
		}
	}
	return cachingFetcher, cleanup, nil
}

// openOutput returns the report destination: the file at path, created
// with owner-only permissions, or stdout when path is empty.
func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports list every fetched address, which may include session tokens.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // nothing to do on close failure
}

// newReportWriter picks the writer for the requested format.
func newReportWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}
