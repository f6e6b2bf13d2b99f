package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html/charset"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/model"
)

// Document is a fetched page waiting for link extraction. It implements
// crawler.Document.
//
// Design decision: Parsing is deferred to ExtractLinks so it runs on the
// crawler's extraction pool, not on the download worker that fetched the
// page. The result is memoized because a Document may be inspected again
// after the crawl, for example to read its title.
type Document struct {
	page  *model.Page
	sites *config.File

	once   sync.Once
	parsed *ParseResult
	err    error
}

// NewDocument wraps page. sites filters links by the ignore and follow
// patterns of their host and may be nil.
func NewDocument(page *model.Page, sites *config.File) *Document {
	return &Document{page: page, sites: sites}
}

// Page returns the fetched page.
func (d *Document) Page() *model.Page {
	return d.page
}

// Title returns the page title, parsing the page if needed.
func (d *Document) Title() string {
	if err := d.parse(); err != nil || d.parsed == nil {
		return ""
	}
	return d.parsed.Title
}

// ExtractLinks returns the followable links of the page. A page that is not
// HTML has no links.
func (d *Document) ExtractLinks() ([]string, error) {
	if err := d.parse(); err != nil {
		return nil, err
	}
	if d.parsed == nil {
		return nil, nil
	}

	links := make([]string, 0, len(d.parsed.Links))
	for _, link := range d.parsed.Links {
		if d.allows(link) {
			links = append(links, link)
		}
	}
	return links, nil
}

func (d *Document) parse() error {
	d.once.Do(func() {
		if d.page == nil || !d.page.IsHTML() || len(d.page.Body) == 0 {
			return
		}

		reader, err := charset.NewReader(bytes.NewReader(d.page.Body), d.page.ContentType)
		if err != nil {
			d.err = fmt.Errorf("failed to decode %s: %w", d.page.URL, err)
			return
		}
		parser, err := NewParser(d.page.BaseURL())
		if err != nil {
			d.err = fmt.Errorf("invalid base address %q: %w", d.page.BaseURL(), err)
			return
		}
		d.parsed, d.err = parser.Parse(reader)
		if d.err != nil {
			d.err = fmt.Errorf("failed to parse %s: %w", d.page.URL, d.err)
		}
	})
	return d.err
}

// allows applies the site patterns of the link's host. Links that do not
// parse are always passed on so they are reported, not silently dropped.
func (d *Document) allows(link string) bool {
	if d.sites == nil {
		return true
	}
	u, err := url.Parse(link)
	if err != nil {
		return true
	}
	return d.sites.GetSiteConfig(strings.ToLower(u.Hostname())).Allows(u.Path)
}
