// Package config provides configuration structures and utilities for the
// crawler. It defines pool sizes and crawl limits, fetch settings, cache
// and history locations, report output preferences, and the per-site
// overrides read from the .webcrawler file.
package config
