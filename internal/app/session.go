package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webresearch/internal/aggregate"
	"github.com/hyperifyio/webresearch/internal/collect"
	"github.com/hyperifyio/webresearch/internal/extract"
	"github.com/hyperifyio/webresearch/internal/fetch"
	"github.com/hyperifyio/webresearch/internal/robots"
	"github.com/hyperifyio/webresearch/internal/search"
)

// ErrNoUsableContent is returned by Run when a command completed but produced
// nothing usable. Per the exit code policy the CLI exits with status 2.
var ErrNoUsableContent = errors.New("no usable content")

// ErrUsage marks a malformed command.
var ErrUsage = errors.New("usage")

// Session wires one run's components. Each session owns a fresh robots cache,
// so robots.txt is fetched at most once per host per session.
type Session struct {
	HTTPClient *http.Client
	Robots     *robots.Policy
	Fetcher    *fetch.Fetcher
	Search     *search.Client
	Aggregator *aggregate.Aggregator
	Collector  *collect.Collector
}

// New validates cfg and builds a Session on a new HTTP client.
func New(cfg Config) (*Session, error) {
	return NewWithClient(cfg, NewHTTPClient(cfg.SSLVerify))
}

// NewWithClient builds a Session that sends every request through hc.
func NewWithClient(cfg Config, hc *http.Client) (*Session, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	format, err := extract.ParseFormat(cfg.ExtractFormat)
	if err != nil {
		return nil, err
	}
	extractor, err := extract.New(cfg.ExtractMode, format)
	if err != nil {
		return nil, err
	}
	provider, answerer, err := NewProvider(cfg, hc)
	if err != nil {
		return nil, err
	}

	s := &Session{HTTPClient: hc}
	s.Robots = &robots.Policy{
		HTTPClient: hc,
		Timeout:    cfg.RobotsTimeout,
		Cache:      robots.NewCache(),
		UserAgent:  cfg.UserAgent,
	}
	s.Fetcher = &fetch.Fetcher{
		HTTPClient:    hc,
		Robots:        s.Robots,
		Extractor:     extractor,
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.FetchTimeout,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		MaxConcurrent: cfg.MaxConcurrent,
	}
	s.Search = &search.Client{
		Provider:    provider,
		Answerer:    answerer,
		Timeout:     cfg.SearchTimeout,
		Concurrency: cfg.SearchConcurrency,
	}
	if len(cfg.DomainAllowlist) > 0 || len(cfg.DomainDenylist) > 0 {
		s.Search.Domains = &search.DomainPolicy{Allowlist: cfg.DomainAllowlist, Denylist: cfg.DomainDenylist}
	}
	s.Aggregator = &aggregate.Aggregator{Search: s.Search, Concurrency: cfg.SearchConcurrency}

	// A zero delay in config means no delay; the collector treats zero as
	// "use the default", so map it to a negative value.
	delay := cfg.PoliteDelay
	if delay == 0 {
		delay = -1
	}
	s.Collector = &collect.Collector{
		Search:          s.Search,
		Fetcher:         s.Fetcher,
		Delay:           delay,
		Workers:         cfg.Workers,
		Retries:         cfg.Retries,
		PerDomain:       cfg.PerDomainCap,
		MinSnippetChars: cfg.MinSnippetChars,
		Canonical:       cfg.CanonicalURLs,
		QueryPrefix:     cfg.QueryPrefix,
	}
	log.Debug().Str("provider", provider.Name()).Str("extract", cfg.ExtractMode).Msg("session ready")
	return s, nil
}

// NewProvider builds the configured search provider and, when the backend
// offers instant answers, the matching Answerer.
func NewProvider(cfg Config, hc *http.Client) (search.Provider, search.Answerer, error) {
	switch p := cfg.ResolvedProvider(); p {
	case ProviderSearxNG:
		sx := &search.SearxNG{BaseURL: cfg.SearxURL, APIKey: cfg.SearxKey, HTTPClient: hc, UserAgent: cfg.UserAgent}
		return sx, sx, nil
	case ProviderDuckDuckGo:
		ddg := &search.DuckDuckGo{HTTPClient: hc, UserAgent: cfg.UserAgent, Region: cfg.SearchRegion}
		return ddg, &search.DuckDuckGoAnswers{HTTPClient: hc, UserAgent: cfg.UserAgent}, nil
	case ProviderBrave:
		b := &search.Brave{APIKey: cfg.BraveAPIKey, HTTPClient: hc, UserAgent: cfg.UserAgent}
		return b, b, nil
	case ProviderFile:
		f := &search.FileProvider{Path: cfg.FileSearchPath, AnswersPath: cfg.FileAnswersPath}
		if f.AnswersPath == "" {
			return f, nil, nil
		}
		return f, f, nil
	default:
		return nil, nil, fmt.Errorf("unknown search provider %q", p)
	}
}

// Aggregate runs the batch search with headlines for queries.
func (s *Session) Aggregate(ctx context.Context, queries []string, maxResults int) aggregate.Report {
	return s.Aggregator.Aggregate(ctx, queries, maxResults)
}

// Collect gathers up to target news articles about topic.
func (s *Session) Collect(ctx context.Context, topic string, target, maxChars int) collect.ArticleSet {
	return s.Collector.Collect(ctx, topic, target, maxChars)
}

// Scrape fetches each caller-given URL.
func (s *Session) Scrape(ctx context.Context, urls []string) []collect.Page {
	return s.Collector.Scrape(ctx, urls)
}

// Command names accepted by Run.
const (
	CommandSearch = "search"
	CommandNews   = "news"
	CommandScrape = "scrape"
)

// Command describes one CLI invocation.
type Command struct {
	Name string
	// Args are queries for search, topic words for news and URLs for scrape.
	Args       []string
	MaxResults int
	Articles   int
	MaxChars   int
	// Merged appends every query's sources as one deduplicated list to
	// search output.
	Merged bool
}

// Run executes cmd and writes its text rendering to w. The rendering is
// written even when ErrNoUsableContent is returned.
func (s *Session) Run(ctx context.Context, cmd Command, w io.Writer) error {
	var (
		text  string
		empty bool
	)
	switch cmd.Name {
	case CommandSearch:
		if len(cmd.Args) == 0 {
			return fmt.Errorf("%w: search needs at least one query", ErrUsage)
		}
		rep := s.Aggregate(ctx, cmd.Args, cmd.MaxResults)
		text, empty = rep.String(), rep.Failure != ""
		if cmd.Merged && !empty {
			if all := rep.MergedString(); all != "" {
				text += "\n\n" + all
			}
		}
	case CommandNews:
		topic := strings.TrimSpace(strings.Join(cmd.Args, " "))
		if topic == "" {
			return fmt.Errorf("%w: news needs a topic", ErrUsage)
		}
		set := s.Collect(ctx, topic, cmd.Articles, cmd.MaxChars)
		text, empty = set.String(), set.ProcessedCount == 0
	case CommandScrape:
		pages := s.Scrape(ctx, cmd.Args)
		text, empty = collect.ScrapeText(pages), !anyOK(pages)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd.Name)
	}
	if _, err := io.WriteString(w, text+"\n"); err != nil {
		return err
	}
	if empty {
		return ErrNoUsableContent
	}
	return nil
}

func anyOK(pages []collect.Page) bool {
	for _, p := range pages {
		if p.Outcome.OK() {
			return true
		}
	}
	return false
}
