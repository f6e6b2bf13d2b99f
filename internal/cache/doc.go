// Package cache provides page stores for the caching fetcher.
//
// MemoryStore keeps pages in process memory on top of bigcache, with
// TTL-based eviction and a hard size cap. Tiered chains several stores, for
// example memory in front of the SQLite page cache, and back-fills the
// faster tiers on a hit in a slower one. BloomGuard sits in front of a slow
// store and answers most misses without touching it.
//
// All stores follow the fetcher.PageStore contract: GetPage returns
// (nil, nil) for an address that is not stored.
package cache
