package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoSeed is returned when no address to crawl is given.
	ErrNoSeed = errors.New("no seed specified: provide at least one URL to crawl")

	// ErrInvalidDepth is returned when the depth is below 1.
	ErrInvalidDepth = errors.New("invalid depth: must be at least 1")

	// ErrInvalidDownloaders is returned when the download pool size is not positive.
	ErrInvalidDownloaders = errors.New("invalid downloaders: must be positive")

	// ErrInvalidExtractors is returned when the extraction pool size is not positive.
	ErrInvalidExtractors = errors.New("invalid extractors: must be positive")

	// ErrInvalidPerHost is returned when the per-host limit is not positive.
	ErrInvalidPerHost = errors.New("invalid per-host limit: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	// A timeout of zero or negative would cause immediate request failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidCacheTTL is returned when caching is on with a non-positive TTL.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL: must be positive when caching is enabled")

	// ErrInvalidRate is returned when the per-host rate is negative, or
	// positive with a burst below 1.
	ErrInvalidRate = errors.New("invalid rate: rate must be non-negative and burst at least 1")
)
