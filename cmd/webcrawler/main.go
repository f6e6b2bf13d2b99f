// Package main provides the entry point for the webcrawler CLI.
//
// webcrawler crawls web sites from one or more seed addresses with bounded
// concurrency: a fixed number of downloads, a fixed number of link
// extractions, and a cap on simultaneous requests to any one host.
//
// Usage:
//
//	webcrawler crawl <url> [url...]
//	webcrawler history <url>
//
// See --help for all available options.
package main

// main is the entry point for webcrawler.
func main() {
	Execute()
}
