package config

import (
	"strings"
	"time"
)

// SiteConfig holds overrides for pages on one host.
type SiteConfig struct {
	// Selectors replaces the play controls tried on the page.
	Selectors []string `yaml:"selectors,omitempty"`

	// Denylist adds host/path patterns that are never selected.
	Denylist []string `yaml:"denylist,omitempty"`

	// UserAgent overrides the browser and retrieval user agent.
	UserAgent string `yaml:"userAgent,omitempty"`

	// SignalTimeout overrides how long an attempt waits for candidates.
	SignalTimeout time.Duration `yaml:"signalTimeout,omitempty"`

	// MaxAttempts overrides the attempt count.
	MaxAttempts int `yaml:"maxAttempts,omitempty"`

	// CookiesFile is a Netscape cookies.txt for this site.
	CookiesFile string `yaml:"cookiesFile,omitempty"`
}

// SinkConfig describes the delivery endpoint.
type SinkConfig struct {
	// Endpoint is the sink base URL.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Secret is the bearer token. Prefer the environment for this one.
	Secret string `yaml:"secret,omitempty"`

	// ContinueOnError keeps attempting after a refused delivery.
	ContinueOnError bool `yaml:"continueOnError,omitempty"`
}

// File is the structure of .streamscout.yaml.
type File struct {
	// Sink configures delivery.
	Sink SinkConfig `yaml:"sink,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Sites maps a host name (without scheme or port) to its overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`
}

// GetSiteConfig merges the defaults with the section for host. Denylist
// entries accumulate; every other field is replaced when set.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Selectors = append([]string(nil), cf.Defaults.Selectors...)
	result.Denylist = append([]string(nil), cf.Defaults.Denylist...)

	site, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}
	if len(site.Selectors) > 0 {
		result.Selectors = append([]string(nil), site.Selectors...)
	}
	result.Denylist = append(result.Denylist, site.Denylist...)
	if site.UserAgent != "" {
		result.UserAgent = site.UserAgent
	}
	if site.SignalTimeout > 0 {
		result.SignalTimeout = site.SignalTimeout
	}
	if site.MaxAttempts > 0 {
		result.MaxAttempts = site.MaxAttempts
	}
	if site.CookiesFile != "" {
		result.CookiesFile = site.CookiesFile
	}
	return result
}
