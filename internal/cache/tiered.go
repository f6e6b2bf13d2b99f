package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/webcrawler/internal/fetcher"
	"github.com/nao1215/webcrawler/internal/model"
)

// Tiered reads from its stores in order and writes to all of them.
//
// Design decision: A failing tier is skipped on read rather than failing
// the lookup. The next tier may still have the page, and the caching
// fetcher treats a read error as a miss anyway.
type Tiered struct {
	tiers  []fetcher.PageStore
	logger *slog.Logger
}

// NewTiered chains tiers, fastest first. Nil tiers are dropped.
func NewTiered(logger *slog.Logger, tiers ...fetcher.PageStore) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	kept := make([]fetcher.PageStore, 0, len(tiers))
	for _, tier := range tiers {
		if tier != nil {
			kept = append(kept, tier)
		}
	}
	return &Tiered{tiers: kept, logger: logger}
}

// GetPage returns the first hit and copies it into the tiers before it.
func (t *Tiered) GetPage(ctx context.Context, address string) (*model.Page, error) {
	var errs []error
	for i, tier := range t.tiers {
		page, err := tier.GetPage(ctx, address)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if page == nil {
			continue
		}

		for _, faster := range t.tiers[:i] {
			if err := faster.PutPage(ctx, page); err != nil {
				t.logger.Debug("failed to back-fill cache tier", "url", address, "error", err)
			}
		}
		return page, nil
	}

	// Every tier failed: report it. Some tiers missing cleanly is a miss.
	if len(errs) == len(t.tiers) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// PutPage writes page to every tier and joins their errors.
func (t *Tiered) PutPage(ctx context.Context, page *model.Page) error {
	var errs []error
	for _, tier := range t.tiers {
		if err := tier.PutPage(ctx, page); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
