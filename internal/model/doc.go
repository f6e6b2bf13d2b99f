// Package model defines the data shared by the crawler's outer layers.
//
// This package contains the following main types:
//   - Page: a fetched response, as stored by the page cache
//   - CrawlReport: the outcome of crawling one seed, as written by the
//     report writers and stored in history
//
// Design decision: The models live in their own leaf package so that the
// fetcher, cache, database, pipeline and report packages can share them
// without importing each other. The crawler core does not use them; it
// only knows about its Fetcher and Document interfaces.
//
// The models are designed to be serializable to JSON for report output,
// cache entries and database storage.
package model
