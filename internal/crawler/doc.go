// Package crawler implements a bounded-concurrency, breadth-first web crawler.
//
// # Architecture
//
// A WebCrawler owns two fixed-size worker pools, one for downloads and one
// for link extraction, plus a per-host admission controller that sits in
// front of the download pool. Each Download call gets its own pending queue,
// visited set, wave counter and result collector:
//
//	Download ──► pending queue ──► admission (per host) ──► download pool
//	    ▲                                                      │
//	    │                                                      ▼
//	    └───────── visited set ◄──── extraction pool ◄──── fetched Document
//
// The orchestrator loop pops link tasks, registers them with the wave and
// hands them to admission. When the queue runs dry it waits for the wave to
// drain; extraction may have refilled the queue in the meantime, so the loop
// only ends when the queue is empty after a drain.
//
// Design decision: Registration travels with execution rather than with the
// queue. A popped task is registered by the orchestrator, a fetch registers
// its extraction before deregistering itself, and an extraction deregisters
// only after pushing all of its children. Registering queued tasks instead
// would leave the orchestrator waiting for tasks that only it can submit.
//
// # Depth
//
// Depth counts fetched levels: depth 1 fetches the seed only, depth 2 the
// seed and the pages it links to. A page reachable from the seed by a
// shortest path of n links is fetched when n < depth.
//
// # Errors
//
// Per-address failures never abort a crawl. A failed fetch, a malformed
// address or a panicking Fetcher becomes a *FetchError in Result.Errors. A
// failure while reading the links of a fetched page becomes an
// *ExtractionError in Result.ExtractionErrors, keyed by that page. Only
// configuration errors, ErrClosed and context errors are returned by
// Download.
//
// # Usage
//
//	c, err := crawler.New(fetcher, 8, 4, 2)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	result, err := c.Download(ctx, "https://example.com/", 3)
package crawler
