package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/model"
)

// defaultConcurrency is the number of seeds crawled at once by default.
const defaultConcurrency = 10

// BatchProcessor crawls several seeds concurrently, one pipeline each.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because it keeps Pipeline focused on a single
// seed and lets the batch strategy change without touching the steps.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each seed.
	pipelineFactory func() *Pipeline

	// depthFor picks the depth limit of each seed.
	depthFor func(seed string) int

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Default is 10 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithDepth sets how the depth of each seed is chosen, for example from
// per-site configuration. The default is config.DefaultDepth.
func WithDepth(depthFor func(seed string) int) BatchOption {
	return func(b *BatchProcessor) {
		if depthFor != nil {
			b.depthFor = depthFor
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each seed so that pipeline
// state doesn't leak between crawls.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		depthFor:        func(string) int { return config.DefaultDepth },
		concurrency:     defaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls seeds concurrently and returns their reports in the
// order of seeds.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because each seed is one coarse unit of work and errgroup bounds them
// correctly. A failed crawl is recorded in its report and does not stop
// the others, so the group never sees an error from a crawl.
//
// Seeds not started before ctx is done have no report (nil entry), and the
// context error is returned.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.CrawlReport, error) {
	bp.logger.Info("starting batch processing",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Each goroutine writes only its own index.
	results := make([]*model.CrawlReport, len(seeds))
	err := bp.run(ctx, seeds, func(report *model.CrawlReport, index int) {
		results[index] = report
	})

	bp.logger.Info("batch processing complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)

	return results, err
}

// ProcessBatchWithCallback crawls seeds and calls callback for each
// completed report. This is useful for streaming results.
//
// The callback receives the report and the index of the seed in the
// original slice. It is called from the goroutine that finished the crawl,
// so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(report *model.CrawlReport, index int),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	return bp.run(ctx, seeds, callback)
}

func (bp *BatchProcessor) run(ctx context.Context, seeds []string, done func(*model.CrawlReport, int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			report := model.NewCrawlReport(seed, bp.depthFor(seed))
			if err := bp.pipelineFactory().Execute(ctx, report); err != nil {
				bp.logger.Warn("crawl failed",
					"seed", seed,
					"error", err,
				)
			}

			done(report, i)
			return nil
		})
	}

	return g.Wait()
}
