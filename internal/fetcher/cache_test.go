package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/webcrawler/internal/model"
)

// mapStore is an in-memory PageStore with switchable failures.
type mapStore struct {
	mu      sync.Mutex
	pages   map[string]*model.Page
	getErr  error
	putErr  error
	putHits int
}

func newMapStore() *mapStore {
	return &mapStore{pages: make(map[string]*model.Page)}
}

func (s *mapStore) GetPage(_ context.Context, address string) (*model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.pages[address], nil
}

func (s *mapStore) PutPage(_ context.Context, page *model.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putHits++
	if s.putErr != nil {
		return s.putErr
	}
	s.pages[page.URL] = page
	return nil
}

// countingSource returns a fresh page per call and counts the calls.
type countingSource struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingSource) FetchPage(_ context.Context, address string) (*model.Page, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return htmlPage(address, `<a href="/next">n</a>`), nil
}

func TestCachingFetcher(t *testing.T) {
	t.Parallel()

	const address = "http://example.com/"

	t.Run("requires a source", func(t *testing.T) {
		t.Parallel()

		if _, err := NewCachingFetcher(nil, newMapStore()); !errors.Is(err, ErrNilSource) {
			t.Errorf("NewCachingFetcher(nil) error = %v, want ErrNilSource", err)
		}
	})

	t.Run("second fetch is served from the store", func(t *testing.T) {
		t.Parallel()

		source := &countingSource{}
		c, err := NewCachingFetcher(source, newMapStore(), WithCacheLogger(discardLogger()))
		if err != nil {
			t.Fatal(err)
		}

		for range 3 {
			if _, err := c.FetchPage(t.Context(), address); err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
		}
		if got := source.calls.Load(); got != 1 {
			t.Errorf("source called %d times, want 1", got)
		}
		if got := c.Stats(); got != (CacheStats{Hits: 2, Misses: 1}) {
			t.Errorf("Stats() = %+v, want 2 hits and 1 miss", got)
		}
	})

	t.Run("stale pages are fetched again", func(t *testing.T) {
		t.Parallel()

		store := newMapStore()
		old := htmlPage(address, "")
		old.FetchedAt = time.Now().Add(-2 * time.Hour)
		store.pages[address] = old

		source := &countingSource{}
		c, err := NewCachingFetcher(source, store, WithCacheTTL(time.Hour), WithCacheLogger(discardLogger()))
		if err != nil {
			t.Fatal(err)
		}
		page, err := c.FetchPage(t.Context(), address)
		if err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}
		if page == old || source.calls.Load() != 1 {
			t.Error("stale page was served from the store")
		}
	})

	t.Run("store failures do not fail the fetch", func(t *testing.T) {
		t.Parallel()

		store := newMapStore()
		store.getErr = errors.New("disk gone")
		store.putErr = errors.New("disk gone")
		source := &countingSource{}
		c, err := NewCachingFetcher(source, store, WithCacheLogger(discardLogger()))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.FetchPage(t.Context(), address); err != nil {
			t.Errorf("FetchPage() error = %v, want nil", err)
		}
		if store.putHits != 1 {
			t.Errorf("PutPage called %d times, want 1", store.putHits)
		}
	})

	t.Run("source errors are returned and not stored", func(t *testing.T) {
		t.Parallel()

		store := newMapStore()
		source := &countingSource{err: ErrUnexpectedStatus}
		c, err := NewCachingFetcher(source, store, WithCacheLogger(discardLogger()))
		if err != nil {
			t.Fatal(err)
		}
		if doc, err := c.Fetch(t.Context(), address); doc != nil || !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("Fetch() = %v, %v; want ErrUnexpectedStatus", doc, err)
		}
		if store.putHits != 0 {
			t.Error("a failed fetch was stored")
		}
	})

	t.Run("concurrent misses share one fetch", func(t *testing.T) {
		t.Parallel()

		source := &countingSource{delay: 50 * time.Millisecond}
		c, err := NewCachingFetcher(source, nil, WithCacheLogger(discardLogger()))
		if err != nil {
			t.Fatal(err)
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := c.FetchPage(t.Context(), address); err != nil {
					t.Errorf("FetchPage() error = %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		if got := source.calls.Load(); got >= 8 {
			t.Errorf("source called %d times for 8 concurrent misses", got)
		}
	})

	t.Run("documents extract links from cached pages", func(t *testing.T) {
		t.Parallel()

		store := newMapStore()
		store.pages[address] = htmlPage(address, `<a href="/cached">c</a>`)
		source := &countingSource{}
		c, err := NewCachingFetcher(source, store, WithCacheLogger(discardLogger()))
		if err != nil {
			t.Fatal(err)
		}
		doc, err := c.Fetch(t.Context(), address)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		links, err := doc.ExtractLinks()
		if err != nil || len(links) != 1 || links[0] != "http://example.com/cached" {
			t.Errorf("ExtractLinks() = %v, %v; want the cached link", links, err)
		}
		if source.calls.Load() != 0 {
			t.Error("source was called for a cached page")
		}
	})
}
