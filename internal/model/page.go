package model

import (
	"encoding/hex"
	"mime"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Page is a fetched response as the crawler and the page cache see it.
//
// Design decision: The body travels with the page (and into the cache)
// because link extraction happens after the fetch, on another worker, and
// a cached page must be extractable without touching the network again.
type Page struct {
	// URL is the address the page was requested with.
	URL string `json:"url"`

	// FinalURL is the address after redirects, when it differs from URL.
	// Relative links are resolved against it.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains the HTTP response headers in canonical form.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the Content-Type header, parameters included.
	ContentType string `json:"content_type"`

	// Body is the response body, limited to the fetcher's maximum size.
	Body []byte `json:"body,omitempty"`

	// Hash is the hex BLAKE2b-256 digest of Body.
	Hash string `json:"hash,omitempty"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`
}

// MaxPageSize is the default limit on stored page bodies.
const MaxPageSize = 5 * 1024 * 1024 // 5 MB

// ComputeHash sets Hash from Body. An empty body has an empty hash.
//
// Design decision: BLAKE2b rather than SHA-256 because the hash is only an
// identity for cache validation and it is noticeably faster on large pages.
func (p *Page) ComputeHash() {
	if len(p.Body) == 0 {
		p.Hash = ""
		return
	}

	sum := blake2b.Sum256(p.Body)
	p.Hash = hex.EncodeToString(sum[:])
}

// GetHeader returns the first value of the named header, or "".
// name must be in canonical form.
func (p *Page) GetHeader(name string) string {
	if values, ok := p.Headers[name]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// MediaType returns the lower-cased media type of ContentType without
// parameters, or "" when it cannot be parsed.
func (p *Page) MediaType() string {
	if p.ContentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		// Fall back to the part before the first parameter.
		mediaType, _, _ = strings.Cut(p.ContentType, ";")
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mediaType
}

// IsHTML reports whether the page holds an HTML document.
func (p *Page) IsHTML() bool {
	switch p.MediaType() {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// BaseURL returns the address relative links on the page resolve against.
func (p *Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// IsSuccess reports whether the status code is 2xx.
func (p *Page) IsSuccess() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// TruncateBody cuts Body to at most limit bytes. A non-positive limit
// means MaxPageSize.
func (p *Page) TruncateBody(limit int64) {
	if limit <= 0 {
		limit = MaxPageSize
	}
	if int64(len(p.Body)) > limit {
		p.Body = p.Body[:limit]
	}
}
