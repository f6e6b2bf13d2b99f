package cache

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nao1215/webcrawler/internal/fetcher"
	"github.com/nao1215/webcrawler/internal/model"
)

// BloomGuard answers "not stored" for a slow store from a Bloom filter of
// the addresses it holds. Only a filter hit reaches the store.
//
// Design decision: The filter only ever skips lookups. A false positive
// costs one store read that then misses; there are no false negatives as
// long as every write goes through the guard or is passed to NewBloomGuard
// as a known address.
type BloomGuard struct {
	store fetcher.PageStore

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewBloomGuard wraps store. expected is the anticipated number of
// addresses and known lists those already in the store.
func NewBloomGuard(store fetcher.PageStore, expected uint, known []string) *BloomGuard {
	if n := uint(len(known)) * 2; n > expected {
		expected = n
	}
	if expected == 0 {
		expected = 1024
	}
	filter := bloom.NewWithEstimates(expected, 0.001)
	for _, address := range known {
		filter.AddString(address)
	}
	return &BloomGuard{store: store, filter: filter}
}

// GetPage consults the store only when the filter may contain address.
func (g *BloomGuard) GetPage(ctx context.Context, address string) (*model.Page, error) {
	g.mu.RLock()
	maybe := g.filter.TestString(address)
	g.mu.RUnlock()
	if !maybe {
		return nil, nil
	}
	return g.store.GetPage(ctx, address)
}

// PutPage writes through to the store and records the address.
func (g *BloomGuard) PutPage(ctx context.Context, page *model.Page) error {
	if err := g.store.PutPage(ctx, page); err != nil {
		return err
	}
	g.mu.Lock()
	g.filter.AddString(page.URL)
	g.mu.Unlock()
	return nil
}
