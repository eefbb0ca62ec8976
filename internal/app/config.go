package app

import (
	"time"

	"github.com/hyperifyio/webresearch/internal/collect"
	"github.com/hyperifyio/webresearch/internal/fetch"
	"github.com/hyperifyio/webresearch/internal/robots"
	"github.com/hyperifyio/webresearch/internal/search"
)

// Provider names accepted by Config.SearchProvider.
const (
	ProviderSearxNG    = "searxng"
	ProviderDuckDuckGo = "duckduckgo"
	ProviderBrave      = "brave"
	ProviderFile       = "file"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Search
	SearchProvider  string
	SearxURL        string
	SearxKey        string
	BraveAPIKey     string
	FileSearchPath  string
	FileAnswersPath string
	// SearchRegion is the DuckDuckGo region code (kl), e.g. "us-en".
	SearchRegion      string
	SearchTimeout     time.Duration
	SearchConcurrency int
	DomainAllowlist   []string
	DomainDenylist    []string

	// Fetching
	UserAgent     string
	FetchTimeout  time.Duration
	RobotsTimeout time.Duration
	MaxBodyBytes  int64
	MaxConcurrent int
	Retries       int
	// SSLVerify=false disables TLS certificate checks.
	SSLVerify bool

	// Collection
	PoliteDelay  time.Duration
	Workers      int
	PerDomainCap int
	QueryPrefix  string
	// MinSnippetChars drops news candidates with shorter snippets.
	MinSnippetChars int
	// CanonicalURLs dedupes news candidates on canonical URLs.
	CanonicalURLs bool

	// Extraction: mode is heuristic or readability, format is text or markdown.
	ExtractMode   string
	ExtractFormat string

	Verbose bool
}

// DefaultConfig returns the built-in defaults that file, env and flags
// overlay in that order.
func DefaultConfig() Config {
	return Config{
		SearchTimeout:     search.DefaultTimeout,
		SearchConcurrency: search.DefaultConcurrency,
		UserAgent:         fetch.DefaultUserAgent,
		FetchTimeout:      fetch.DefaultTimeout,
		RobotsTimeout:     robots.DefaultTimeout,
		MaxBodyBytes:      fetch.DefaultMaxBodyBytes,
		SSLVerify:         true,
		PoliteDelay:       collect.DefaultDelay,
		Workers:           1,
		QueryPrefix:       collect.DefaultQueryPrefix,
		ExtractMode:       "heuristic",
		ExtractFormat:     "text",
	}
}

// ResolvedProvider returns the configured provider name, or infers one:
// searxng when a SearxNG URL is set, file when a results file is set,
// duckduckgo otherwise.
func (c Config) ResolvedProvider() string {
	if c.SearchProvider != "" {
		return c.SearchProvider
	}
	switch {
	case c.SearxURL != "":
		return ProviderSearxNG
	case c.FileSearchPath != "":
		return ProviderFile
	}
	return ProviderDuckDuckGo
}
