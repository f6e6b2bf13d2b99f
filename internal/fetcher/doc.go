// Package fetcher turns addresses into crawlable documents over HTTP.
//
// HTTPFetcher performs the requests: it applies per-site headers and cookies
// from the configuration file, limits response bodies and optionally routes
// every connection through a SOCKS5 proxy. The pages it returns are wrapped
// in a Document, which extracts links lazily when the crawler's extraction
// pool asks for them.
//
// CachingFetcher sits in front of any PageFetcher and serves recently
// fetched pages from a PageStore, so repeated crawls of the same site do not
// hit the network again. Concurrent requests for one address share a single
// upstream fetch.
//
// Both HTTPFetcher and CachingFetcher implement crawler.Fetcher.
package fetcher
