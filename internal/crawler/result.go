package crawler

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

// Result is the outcome of one Download call.
//
// Every address the crawl scheduled ends up in exactly one of Fetched and
// Errors. ExtractionErrors is keyed by parent addresses, which are always
// also in Fetched: the page was downloaded, only its links could not be read.
type Result struct {
	// Fetched lists the addresses downloaded successfully, sorted.
	Fetched []string

	// Errors maps each failed address to its *FetchError. Malformed links
	// found during extraction are keyed by their raw text.
	Errors map[string]error

	// ExtractionErrors maps a fetched address to the *ExtractionError raised
	// while reading its links.
	ExtractionErrors map[string]error
}

// HasErrors reports whether any fetch or extraction failed.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0 || len(r.ExtractionErrors) > 0
}

// collector accumulates task outcomes from many workers.
type collector struct {
	mu               sync.Mutex
	fetched          map[string]struct{}
	errors           map[string]error
	extractionErrors map[string]error
}

func newCollector() *collector {
	return &collector{
		fetched:          make(map[string]struct{}),
		errors:           make(map[string]error),
		extractionErrors: make(map[string]error),
	}
}

func (c *collector) addFetched(address string) {
	c.mu.Lock()
	c.fetched[address] = struct{}{}
	c.mu.Unlock()
}

func (c *collector) addError(address string, err error) {
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Address != address {
		err = &FetchError{Address: address, Err: err}
	}
	c.mu.Lock()
	c.errors[address] = err
	c.mu.Unlock()
}

func (c *collector) addExtractionError(address string, err error) {
	c.mu.Lock()
	c.extractionErrors[address] = &ExtractionError{Address: address, Err: err}
	c.mu.Unlock()
}

// result snapshots the collected outcomes.
func (c *collector) result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	fetched := make([]string, 0, len(c.fetched))
	for address := range c.fetched {
		fetched = append(fetched, address)
	}
	slices.Sort(fetched)

	return &Result{
		Fetched:          fetched,
		Errors:           maps.Clone(c.errors),
		ExtractionErrors: maps.Clone(c.extractionErrors),
	}
}
