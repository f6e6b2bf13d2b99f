package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/model"
)

// Downloader runs a crawl from a seed. *crawler.WebCrawler implements it.
type Downloader interface {
	Download(ctx context.Context, seed string, depth int) (*crawler.Result, error)
}

// ReportSaver stores finished crawl reports. *database.CrawlDB implements it.
type ReportSaver interface {
	SaveCrawlReport(ctx context.Context, report *model.CrawlReport) error
}

// Limits are the concurrency settings of the crawler, recorded in reports.
type Limits struct {
	Downloaders int
	Extractors  int
	PerHost     int
}

// CrawlStep crawls the report's seed to the report's depth and copies the
// outcome into the report.
//
// Design decision: The crawler is shared rather than created per step.
// Its pools and per-host limits are meant to span every seed of a batch,
// so two seeds on one host still respect the per-host cap together.
type CrawlStep struct {
	crawler Downloader
	limits  Limits
	logger  *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLimits records the crawler's concurrency settings in reports.
func WithCrawlLimits(limits Limits) CrawlStepOption {
	return func(s *CrawlStep) {
		s.limits = limits
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCrawlStep creates a crawl step running on c.
func NewCrawlStep(c Downloader, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		crawler: c,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step. A cancelled crawl keeps its partial result
// in the report and returns the context error.
func (s *CrawlStep) Do(ctx context.Context, report *model.CrawlReport) error {
	report.Downloaders = s.limits.Downloaders
	report.Extractors = s.limits.Extractors
	report.PerHost = s.limits.PerHost

	result, err := s.crawler.Download(ctx, report.Seed, report.Depth)
	if result != nil {
		report.ApplyResult(result.Fetched, result.Errors, result.ExtractionErrors)
	}
	report.Finish(err)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("crawl interrupted",
				"seed", report.Seed,
				"fetched", len(report.Fetched),
			)
		}
		return err
	}

	s.logger.Info("crawl completed",
		"seed", report.Seed,
		"fetched", len(report.Fetched),
		"errors", report.ErrorCount(),
		"duration", report.Duration(),
	)
	return nil
}

// PersistStep saves the report to crawl history.
type PersistStep struct {
	saver  ReportSaver
	logger *slog.Logger
}

// NewPersistStep creates a step that saves reports through saver.
func NewPersistStep(saver ReportSaver, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{saver: saver, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do saves the report. A report that never finished is stamped first.
func (s *PersistStep) Do(ctx context.Context, report *model.CrawlReport) error {
	if report.FinishedAt.IsZero() {
		report.Finish(nil)
	}
	if err := s.saver.SaveCrawlReport(ctx, report); err != nil {
		return err
	}
	s.logger.Debug("report saved", "seed", report.Seed, "id", report.ID)
	return nil
}

// DefaultPipeline creates the standard pipeline: crawl, then persist when
// saver is not nil.
func DefaultPipeline(c Downloader, saver ReportSaver, limits Limits, opts ...Option) *Pipeline {
	p := New(opts...)
	p.AddStep(NewCrawlStep(c, WithCrawlLimits(limits), WithCrawlLogger(p.logger)))
	if saver != nil {
		p.AddStep(NewPersistStep(saver, p.logger))
	}
	return p
}
