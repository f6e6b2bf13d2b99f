// Package database provides SQLite-based storage for the crawler.
//
// CrawlDB stores:
//   - Fetched pages, as the persistent tier of the page cache
//   - Crawl reports, for the history command
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because the cache and history are local to one machine and
// must work without a server. The CGO-free driver keeps cross-compilation
// trivial, and WAL mode lets history queries run while a crawl writes.
package database
