package crawler

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the parent of every configuration error returned by New
// and Download. Callers can match the whole class with errors.Is.
var ErrConfiguration = errors.New("invalid crawler configuration")

// Configuration errors. They are returned synchronously, before any work starts.
var (
	// ErrNilFetcher is returned by New when no Fetcher is supplied.
	ErrNilFetcher = fmt.Errorf("%w: fetcher must not be nil", ErrConfiguration)

	// ErrInvalidDownloaders is returned when the download pool size is not positive.
	ErrInvalidDownloaders = fmt.Errorf("%w: downloaders must be positive", ErrConfiguration)

	// ErrInvalidExtractors is returned when the extraction pool size is not positive.
	ErrInvalidExtractors = fmt.Errorf("%w: extractors must be positive", ErrConfiguration)

	// ErrInvalidPerHost is returned when the per-host cap is not positive.
	ErrInvalidPerHost = fmt.Errorf("%w: per-host limit must be positive", ErrConfiguration)

	// ErrInvalidDepth is returned by Download when depth is less than 1.
	ErrInvalidDepth = fmt.Errorf("%w: depth must be at least 1", ErrConfiguration)
)

var (
	// ErrClosed is returned by Download once Close has been called.
	ErrClosed = errors.New("crawler is closed")

	// ErrPoolClosed is returned when a task is submitted to a pool that has
	// been shut down. Tasks rejected this way are recorded as fetch errors.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrMalformedAddress is returned when an address has no origin host.
	ErrMalformedAddress = errors.New("malformed address")

	// ErrPanic wraps a panic raised by a Fetcher or a Document.
	ErrPanic = errors.New("recovered from panic")
)

// FetchError records a failure to fetch an address. It is also used for
// malformed links discovered during extraction, keyed by the raw link text.
type FetchError struct {
	Address string
	Err     error
}

// Error implements error.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Address, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ExtractionError records a failure to extract links from a document that
// was fetched successfully. Address is the parent page.
type ExtractionError struct {
	Address string
	Err     error
}

// Error implements error.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract links from %s: %v", e.Address, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
