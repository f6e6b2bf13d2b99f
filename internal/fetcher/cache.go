package fetcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/model"
)

// PageStore keeps fetched pages by address.
// GetPage returns (nil, nil) when the address is not stored.
type PageStore interface {
	GetPage(ctx context.Context, address string) (*model.Page, error)
	PutPage(ctx context.Context, page *model.Page) error
}

// CacheStats counts how CachingFetcher served its requests.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// CachingFetcher serves pages from a PageStore and falls back to a source
// fetcher for missing or stale ones. It implements crawler.Fetcher.
//
// Design decision: The store is an optimization, never a dependency. A
// failing store is logged and the page is fetched or returned anyway, so a
// broken cache directory degrades a crawl to uncached instead of failing it.
type CachingFetcher struct {
	source PageFetcher
	store  PageStore
	ttl    time.Duration
	sites  *config.File
	logger *slog.Logger
	now    func() time.Time

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// CacheOption configures a CachingFetcher.
type CacheOption func(*CachingFetcher)

// WithCacheTTL sets how long a stored page is served. A non-positive TTL
// serves stored pages regardless of age.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachingFetcher) {
		c.ttl = ttl
	}
}

// WithCacheSites applies link patterns to the documents returned by Fetch.
func WithCacheSites(sites *config.File) CacheOption {
	return func(c *CachingFetcher) {
		c.sites = sites
	}
}

// WithCacheLogger sets the logger. The default is slog.Default().
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachingFetcher) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCachingFetcher puts store in front of source. A nil store disables
// caching.
func NewCachingFetcher(source PageFetcher, store PageStore, opts ...CacheOption) (*CachingFetcher, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	c := &CachingFetcher{
		source: source,
		store:  store,
		ttl:    config.DefaultCacheTTL,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchPage returns the stored page for address when it is fresh and
// fetches it from the source otherwise. Concurrent misses for the same
// address share one upstream fetch, which runs under the context of the
// first caller.
func (c *CachingFetcher) FetchPage(ctx context.Context, address string) (*model.Page, error) {
	if page := c.lookup(ctx, address); page != nil {
		c.hits.Add(1)
		return page, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(address, func() (any, error) {
		page, err := c.source.FetchPage(ctx, address)
		if err != nil {
			return nil, err
		}
		if c.store != nil {
			if err := c.store.PutPage(ctx, page); err != nil {
				c.logger.Warn("failed to store page", "url", address, "error", err)
			}
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Page), nil //nolint:forcetypeassert // only *model.Page is returned above
}

// Fetch implements crawler.Fetcher.
func (c *CachingFetcher) Fetch(ctx context.Context, address string) (crawler.Document, error) {
	page, err := c.FetchPage(ctx, address)
	if err != nil {
		return nil, err
	}
	return NewDocument(page, c.sites), nil
}

// Stats returns the hit and miss counts so far.
func (c *CachingFetcher) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// lookup returns a fresh stored page or nil.
func (c *CachingFetcher) lookup(ctx context.Context, address string) *model.Page {
	if c.store == nil {
		return nil
	}
	page, err := c.store.GetPage(ctx, address)
	if err != nil {
		c.logger.Warn("failed to read cached page", "url", address, "error", err)
		return nil
	}
	if page == nil {
		return nil
	}
	if c.ttl > 0 && c.now().Sub(page.FetchedAt) > c.ttl {
		return nil
	}
	return page
}
