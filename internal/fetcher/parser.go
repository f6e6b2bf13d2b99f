package fetcher

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// linkAttrs maps the elements a crawler follows to the attribute holding
// the target address.
var linkAttrs = map[string]string{
	"a":      "href",
	"area":   "href",
	"frame":  "src",
	"iframe": "src",
}

// Parser extracts the title and the followable links of an HTML page.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because it copes with the malformed markup common on the web and
// gives us the tree structure needed for <base> handling.
type Parser struct {
	// baseURL resolves relative links. A <base href> in the page replaces it.
	baseURL *url.URL
}

// ParseResult contains what a single parsing pass found.
type ParseResult struct {
	// Title is the text of the first <title> element.
	Title string

	// Links are the followable addresses in document order, resolved,
	// normalized and de-duplicated. An href that cannot be parsed as a URL
	// is kept verbatim so the crawler can report it.
	Links []string
}

// NewParser creates a parser that resolves links against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse reads an HTML document and collects its title and links.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{Links: make([]string, 0)}
	seen := make(map[string]struct{})
	base := p.baseURL
	baseSet := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					result.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "base":
				// Only the first <base href> counts.
				if href := getAttr(n, "href"); href != "" && !baseSet {
					if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
						base = base.ResolveReference(u)
						baseSet = true
					}
				}
			default:
				if attr, ok := linkAttrs[n.Data]; ok {
					if link, ok := resolveLink(base, getAttr(n, attr)); ok {
						if _, dup := seen[link]; !dup {
							seen[link] = struct{}{}
							result.Links = append(result.Links, link)
						}
					}
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return result, nil
}

// resolveLink turns an href into a crawlable address.
//
// It reports false for links that point nowhere a crawler can go: empty
// hrefs, same-page fragments and any scheme other than http or https
// (javascript:, mailto:, tel:, data: and the like). An href that is not a
// valid URL is returned unchanged.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	u, err := url.Parse(href)
	if err != nil {
		return href, true
	}

	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return Normalize(resolved), true
}

// Normalize returns the canonical text of an absolute address: lower-case
// scheme and host, no fragment, and "/" for an empty path.
//
// Design decision: Normalization is deliberately shallow. Query parameters
// keep their order and default ports are not stripped, because servers are
// free to treat those variants as different resources.
func Normalize(u *url.URL) string {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	n.Fragment = ""
	n.RawFragment = ""
	if n.Path == "" && n.Opaque == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	return n.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
