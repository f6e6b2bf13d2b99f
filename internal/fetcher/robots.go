package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsTTL is how long parsed robots.txt rules are reused for a host.
const robotsTTL = 30 * time.Minute

// robotsAgent answers whether robots.txt permits fetching a URL.
//
// Design decision: Robots errors fail open. A host whose robots.txt is
// missing, broken or unreachable is crawled, which is what browsers and
// the major crawlers do too.
type robotsAgent struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

func newRobotsAgent(client *http.Client, userAgent string) *robotsAgent {
	return &robotsAgent{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether target may be fetched.
func (a *robotsAgent) Allowed(ctx context.Context, target *url.URL) bool {
	rules, err := a.rules(ctx, target)
	if err != nil || rules == nil {
		return true
	}
	return rules.TestAgent(target.EscapedPath(), a.agentName())
}

// agentName is the product token of the User-Agent, which is what
// robots.txt groups are matched against.
func (a *robotsAgent) agentName() string {
	name, _, _ := strings.Cut(a.userAgent, "/")
	if name = strings.TrimSpace(name); name == "" {
		return "*"
	}
	return name
}

func (a *robotsAgent) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(target.Scheme + "://" + target.Host)

	a.mu.Lock()
	entry, ok := a.cache[key]
	a.mu.Unlock()
	if ok && time.Since(entry.fetched) < robotsTTL {
		return entry.rules, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// FromResponse maps 4xx to allow-all and 5xx to disallow-all.
	rules, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	a.mu.Lock()
	a.cache[key] = robotsEntry{fetched: time.Now(), rules: rules}
	a.mu.Unlock()
	return rules, nil
}
