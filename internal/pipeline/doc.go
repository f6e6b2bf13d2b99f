// Package pipeline runs crawls as a sequence of steps over a report.
//
// A pipeline for one seed typically crawls it (CrawlStep) and then stores
// the outcome in history (PersistStep). Each step receives the
// model.CrawlReport built up so far and may add to it.
//
// Design decision: We use a pipeline pattern instead of direct function
// calls so that the CLI can leave out persistence (--no-history) or add
// steps without the crawl code knowing about them, and so that error
// handling and logging are the same for every step.
//
// BatchProcessor runs one pipeline per seed with bounded concurrency,
// using errgroup.
package pipeline
