package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/webcrawler/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPage(address string) *model.Page {
	page := &model.Page{
		URL:         address,
		StatusCode:  200,
		ContentType: "text/html",
		Headers:     map[string][]string{"Content-Type": {"text/html"}},
		Body:        []byte(`<a href="/x">x</a>`),
		FetchedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	page.ComputeHash()
	return page
}

// fakeStore is a PageStore that counts calls and can fail.
type fakeStore struct {
	mu    sync.Mutex
	pages map[string]*model.Page
	gets  int
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{pages: make(map[string]*model.Page)}
}

func (s *fakeStore) GetPage(_ context.Context, address string) (*model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.err != nil {
		return nil, s.err
	}
	return s.pages[address], nil
}

func (s *fakeStore) PutPage(_ context.Context, page *model.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.pages[page.URL] = page
	return nil
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStore(t.Context(), MemoryOptions{TTL: time.Hour, MaxSizeMB: 8, Shards: 16})
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	t.Run("miss is nil without error", func(t *testing.T) {
		t.Parallel()

		page, err := store.GetPage(t.Context(), "http://missing.test/")
		if page != nil || err != nil {
			t.Errorf("GetPage() = %v, %v; want nil, nil", page, err)
		}
	})

	t.Run("round trips a page", func(t *testing.T) {
		t.Parallel()

		want := testPage("http://a.test/")
		if err := store.PutPage(t.Context(), want); err != nil {
			t.Fatalf("PutPage() error = %v", err)
		}
		got, err := store.GetPage(t.Context(), want.URL)
		if err != nil || got == nil {
			t.Fatalf("GetPage() = %v, %v", got, err)
		}
		if got.Hash != want.Hash || string(got.Body) != string(want.Body) || !got.FetchedAt.Equal(want.FetchedAt) {
			t.Errorf("GetPage() = %+v, want %+v", got, want)
		}
		if got.GetHeader("Content-Type") != "text/html" {
			t.Errorf("headers were not kept: %v", got.Headers)
		}
	})
}

func TestTiered(t *testing.T) {
	t.Parallel()

	t.Run("slow hit back-fills faster tiers", func(t *testing.T) {
		t.Parallel()

		fast, slow := newFakeStore(), newFakeStore()
		page := testPage("http://a.test/")
		slow.pages[page.URL] = page

		tiered := NewTiered(discardLogger(), fast, nil, slow)
		got, err := tiered.GetPage(t.Context(), page.URL)
		if err != nil || got != page {
			t.Fatalf("GetPage() = %v, %v; want the slow tier page", got, err)
		}
		if fast.pages[page.URL] != page {
			t.Error("fast tier was not back-filled")
		}
	})

	t.Run("a failing tier is skipped", func(t *testing.T) {
		t.Parallel()

		broken, slow := newFakeStore(), newFakeStore()
		broken.err = errors.New("broken")
		page := testPage("http://a.test/")
		slow.pages[page.URL] = page

		got, err := NewTiered(discardLogger(), broken, slow).GetPage(t.Context(), page.URL)
		if err != nil || got != page {
			t.Errorf("GetPage() = %v, %v; want the slow tier page", got, err)
		}
	})

	t.Run("all tiers failing is an error", func(t *testing.T) {
		t.Parallel()

		a, b := newFakeStore(), newFakeStore()
		a.err = errors.New("a")
		b.err = errors.New("b")
		if _, err := NewTiered(discardLogger(), a, b).GetPage(t.Context(), "http://a.test/"); err == nil {
			t.Error("GetPage() error = nil, want joined errors")
		}
	})

	t.Run("put writes every tier and joins errors", func(t *testing.T) {
		t.Parallel()

		good, bad := newFakeStore(), newFakeStore()
		errBad := errors.New("bad")
		bad.err = errBad
		page := testPage("http://a.test/")

		err := NewTiered(discardLogger(), good, bad).PutPage(t.Context(), page)
		if !errors.Is(err, errBad) {
			t.Errorf("PutPage() error = %v, want it to wrap the tier error", err)
		}
		if good.pages[page.URL] != page {
			t.Error("healthy tier was not written")
		}
	})
}

func TestBloomGuard(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	known := testPage("http://known.test/")
	store.pages[known.URL] = known

	guard := NewBloomGuard(store, 0, []string{known.URL})

	if page, err := guard.GetPage(t.Context(), "http://unknown.test/"); page != nil || err != nil {
		t.Errorf("GetPage(unknown) = %v, %v; want nil, nil", page, err)
	}
	if store.gets != 0 {
		t.Errorf("store read %d times for an unknown address, want 0", store.gets)
	}

	if page, err := guard.GetPage(t.Context(), known.URL); err != nil || page != known {
		t.Errorf("GetPage(known) = %v, %v; want the stored page", page, err)
	}

	fresh := testPage("http://fresh.test/")
	if err := guard.PutPage(t.Context(), fresh); err != nil {
		t.Fatalf("PutPage() error = %v", err)
	}
	if page, err := guard.GetPage(t.Context(), fresh.URL); err != nil || page != fresh {
		t.Errorf("GetPage(fresh) = %v, %v; want the written page", page, err)
	}
}
