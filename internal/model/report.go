package model

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"
)

// CrawlReport is the outcome of crawling one seed, in a form that can be
// written as JSON, rendered by the report writers, and stored in history.
//
// Design decision: Errors are stored as strings rather than error values
// because reports outlive the process that produced them. The crawler's
// typed errors are flattened once, in ApplyResult.
type CrawlReport struct {
	// ID is the history row ID. Zero until the report is saved.
	ID int64 `json:"id,omitempty"`

	// Seed is the address the crawl started from.
	Seed string `json:"seed"`

	// Depth is the depth limit the crawl ran with.
	Depth int `json:"depth"`

	// Downloaders, Extractors and PerHost record the concurrency limits.
	Downloaders int `json:"downloaders"`
	Extractors  int `json:"extractors"`
	PerHost     int `json:"per_host"`

	// StartedAt and FinishedAt bound the crawl.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// Fetched lists the addresses fetched successfully, sorted.
	Fetched []string `json:"fetched"`

	// Errors maps failed addresses to their error messages.
	Errors map[string]string `json:"errors,omitempty"`

	// ExtractionErrors maps fetched addresses whose links could not be
	// read to the error messages.
	ExtractionErrors map[string]string `json:"extraction_errors,omitempty"`

	// Cancelled is true when the crawl was interrupted before it finished.
	Cancelled bool `json:"cancelled,omitempty"`

	// Error is the crawl-level failure, if any.
	Error string `json:"error,omitempty"`
}

// ErrorKind distinguishes fetch failures from extraction failures.
type ErrorKind string

const (
	// ErrorKindFetch is a failure to fetch an address.
	ErrorKindFetch ErrorKind = "fetch"

	// ErrorKindExtraction is a failure to read the links of a fetched page.
	ErrorKindExtraction ErrorKind = "extraction"
)

// ErrorEntry is one row of SortedErrors.
type ErrorEntry struct {
	Address string    `json:"address"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// HostCount is the number of fetched pages of one host.
type HostCount struct {
	Host  string `json:"host"`
	Pages int    `json:"pages"`
}

// NewCrawlReport creates a report for seed with StartedAt set to now.
func NewCrawlReport(seed string, depth int) *CrawlReport {
	return &CrawlReport{
		Seed:             seed,
		Depth:            depth,
		StartedAt:        time.Now(),
		Fetched:          make([]string, 0),
		Errors:           make(map[string]string),
		ExtractionErrors: make(map[string]string),
	}
}

// ApplyResult copies the outcome of a crawl into the report.
func (r *CrawlReport) ApplyResult(fetched []string, errs, extractionErrs map[string]error) {
	r.Fetched = slices.Clone(fetched)
	slices.Sort(r.Fetched)

	if r.Errors == nil {
		r.Errors = make(map[string]string, len(errs))
	}
	for address, err := range errs {
		r.Errors[address] = err.Error()
	}

	if r.ExtractionErrors == nil {
		r.ExtractionErrors = make(map[string]string, len(extractionErrs))
	}
	for address, err := range extractionErrs {
		r.ExtractionErrors[address] = err.Error()
	}
}

// Finish sets FinishedAt and records err as the crawl-level error.
// Context cancellation and deadline errors mark the report Cancelled.
func (r *CrawlReport) Finish(err error) {
	r.FinishedAt = time.Now()
	if err == nil {
		return
	}
	r.Error = err.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.Cancelled = true
	}
}

// Duration returns how long the crawl took, or zero while it is running.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ErrorCount returns the number of fetch and extraction errors.
func (r *CrawlReport) ErrorCount() int {
	return len(r.Errors) + len(r.ExtractionErrors)
}

// HasErrors reports whether the crawl failed or any address did.
func (r *CrawlReport) HasErrors() bool {
	return r.Error != "" || r.ErrorCount() > 0
}

// SortedErrors returns every error ordered by address, then by kind.
func (r *CrawlReport) SortedErrors() []ErrorEntry {
	entries := make([]ErrorEntry, 0, r.ErrorCount())
	for address, message := range r.Errors {
		entries = append(entries, ErrorEntry{Address: address, Kind: ErrorKindFetch, Message: message})
	}
	for address, message := range r.ExtractionErrors {
		entries = append(entries, ErrorEntry{Address: address, Kind: ErrorKindExtraction, Message: message})
	}

	slices.SortFunc(entries, func(a, b ErrorEntry) int {
		if c := strings.Compare(a.Address, b.Address); c != 0 {
			return c
		}
		return strings.Compare(string(a.Kind), string(b.Kind))
	})
	return entries
}

// HostSummary counts fetched pages per host, busiest host first.
func (r *CrawlReport) HostSummary() []HostCount {
	counts := make(map[string]int)
	for _, address := range r.Fetched {
		u, err := url.Parse(address)
		if err != nil || u.Hostname() == "" {
			continue
		}
		counts[strings.ToLower(u.Hostname())]++
	}

	summary := make([]HostCount, 0, len(counts))
	for host, pages := range counts {
		summary = append(summary, HostCount{Host: host, Pages: pages})
	}
	slices.SortFunc(summary, func(a, b HostCount) int {
		if a.Pages != b.Pages {
			return b.Pages - a.Pages
		}
		return strings.Compare(a.Host, b.Host)
	})
	return summary
}
