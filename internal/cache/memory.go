package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/nao1215/webcrawler/internal/model"
)

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	// TTL is how long an entry lives before bigcache evicts it.
	TTL time.Duration

	// MaxSizeMB caps the memory used by entries. Zero means no cap.
	MaxSizeMB int

	// Shards is the number of cache shards and must be a power of two.
	// Zero keeps the bigcache default.
	Shards int
}

// MemoryStore is an in-process page store on bigcache.
//
// Design decision: Pages are stored JSON-encoded. bigcache only holds byte
// slices, which keeps the GC out of the cached data, and JSON is the same
// encoding the SQLite tier uses for headers, so one page has one shape
// everywhere.
type MemoryStore struct {
	cache *bigcache.BigCache
}

// NewMemoryStore creates a store. The eviction goroutine stops when ctx is
// done or Close is called.
func NewMemoryStore(ctx context.Context, opts MemoryOptions) (*MemoryStore, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = ttl / 2
	if cfg.CleanWindow > 5*time.Minute {
		cfg.CleanWindow = 5 * time.Minute
	}
	cfg.HardMaxCacheSize = opts.MaxSizeMB
	if opts.Shards > 0 {
		cfg.Shards = opts.Shards
	}
	cfg.Verbose = false

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

// GetPage returns the page stored for address, or nil.
func (m *MemoryStore) GetPage(_ context.Context, address string) (*model.Page, error) {
	data, err := m.cache.Get(address)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from memory cache: %w", address, err)
	}

	var page model.Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode cached page %s: %w", address, err)
	}
	return &page, nil
}

// PutPage stores page under its URL.
func (m *MemoryStore) PutPage(_ context.Context, page *model.Page) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode page %s: %w", page.URL, err)
	}
	if err := m.cache.Set(page.URL, data); err != nil {
		return fmt.Errorf("failed to cache page %s: %w", page.URL, err)
	}
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// Close stops the eviction goroutine and releases the entries.
func (m *MemoryStore) Close() error {
	return m.cache.Close()
}
