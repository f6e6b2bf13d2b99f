package config

import (
	"maps"
	"path"
	"strings"
)

// SiteConfig holds site-specific configuration for a single host.
// This allows customizing fetch behavior per site.
type SiteConfig struct {
	// Cookie is an HTTP cookie to use when fetching from this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global depth when the site is a seed.
	// If zero, the global Depth is used.
	Depth int `yaml:"depth,omitempty"`

	// IgnorePatterns are URL path patterns whose links are not followed.
	// Patterns are matched against the URL path using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL path patterns to follow.
	// If specified, only links whose path matches one of them are followed.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .webcrawler configuration file.
type File struct {
	// Sites maps host names to their site-specific configurations.
	// Keys are host names without scheme or port (e.g., "example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// normalize lower-cases site keys so lookups by host are case-insensitive.
func (cf *File) normalize() {
	sites := make(map[string]SiteConfig, len(cf.Sites))
	for host, site := range cf.Sites {
		sites[strings.ToLower(strings.TrimSpace(host))] = site
	}
	cf.Sites = sites
}

// GetSiteConfig returns the configuration for a specific host.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	// Start with defaults; copy the header map so callers cannot mutate them.
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}

	return result
}

// Allows reports whether a link with the given URL path should be followed.
//
// Logic:
//  1. If the path matches any IgnorePattern, skip it (return false)
//  2. If FollowPatterns is set and the path matches none, skip it (return false)
//  3. Otherwise, follow it (return true)
func (sc SiteConfig) Allows(urlPath string) bool {
	if urlPath == "" {
		urlPath = "/"
	}

	for _, pattern := range sc.IgnorePatterns {
		if MatchPattern(pattern, urlPath) {
			return false
		}
	}

	if len(sc.FollowPatterns) == 0 {
		return true
	}
	for _, pattern := range sc.FollowPatterns {
		if MatchPattern(pattern, urlPath) {
			return true
		}
	}
	return false
}

// MatchPattern checks if a URL path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match everything below a directory
//   - a leading *. to match a file extension anywhere
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func MatchPattern(pattern, urlPath string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(urlPath, prefix+"/") || urlPath == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(urlPath, ext) {
			return true
		}
	}

	// URL paths always use forward slashes, so path.Match rather than
	// filepath.Match.
	matched, err := path.Match(pattern, urlPath)
	return err == nil && matched
}
