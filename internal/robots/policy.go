package robots

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds a single robots.txt fetch.
	DefaultTimeout = 10 * time.Second
	// maxRobotsBytes mirrors the 500 KiB limit common crawlers apply.
	maxRobotsBytes = 500 * 1024
)

var errMalformed = errors.New("malformed robots.txt body")

// Decision is the outcome of one policy check. Err is set when robots.txt
// could not be fetched or parsed, or when the caller's context ended before
// the shared fetch settled; Allowed is then true.
type Decision struct {
	Allowed bool
	Host    string
	Err     error
}

type entry struct {
	data *robotstxt.RobotsData
	err  error
}

// Cache holds robots rules per host for the lifetime of one run. It is safe
// for concurrent use; concurrent lookups of an uncached host share a single
// fetch.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	flight  singleflight.Group
	fetches int
}

// NewCache returns an empty per-run cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

func (c *Cache) lookup(host string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[host]
	return e, ok
}

func (c *Cache) store(host string, e entry) {
	c.mu.Lock()
	c.entries[host] = e
	c.mu.Unlock()
}

// Fetches returns how many robots.txt fetches were attempted through c.
func (c *Cache) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// Len returns the number of hosts with a settled entry.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Policy answers allow/deny questions against per-host robots.txt files.
type Policy struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Cache      *Cache
	// UserAgent is sent on robots.txt requests. When empty the agent passed
	// to Check is used.
	UserAgent string
}

// IsAllowed reports whether rawURL may be fetched by userAgent. An unreadable
// robots.txt allows the fetch; the failure is logged.
func (p *Policy) IsAllowed(ctx context.Context, rawURL, userAgent string) bool {
	return p.Check(ctx, rawURL, userAgent).Allowed
}

// Check evaluates rawURL and returns the decision with any policy failure.
func (p *Policy) Check(ctx context.Context, rawURL, userAgent string) Decision {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || !isHTTPScheme(u) {
		if err == nil {
			err = fmt.Errorf("unsupported url: %q", rawURL)
		}
		log.Warn().Err(err).Str("url", rawURL).Msg("robots policy check failed")
		return Decision{Allowed: true, Err: err}
	}
	host, err := hostKey(u)
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("robots policy check failed")
		return Decision{Allowed: true, Err: err}
	}

	e := p.rulesFor(ctx, host, userAgent)
	if e.err != nil {
		log.Warn().Err(e.err).Str("host", host).Str("url", rawURL).Msg("robots policy check failed; assuming allowed")
		return Decision{Allowed: true, Host: host, Err: e.err}
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if path == "" {
		path = "/"
	}
	allowed := e.data.FindGroup(userAgent).Test(path)
	if !allowed {
		log.Debug().Str("host", host).Str("path", path).Str("ua", userAgent).Msg("robots disallow")
	}
	return Decision{Allowed: allowed, Host: host}
}

func (p *Policy) cache() *Cache {
	if p.Cache == nil {
		p.Cache = NewCache()
	}
	return p.Cache
}

func (p *Policy) rulesFor(ctx context.Context, host, userAgent string) entry {
	c := p.cache()
	if e, ok := c.lookup(host); ok {
		return e
	}
	ch := c.flight.DoChan(host, func() (any, error) {
		if e, ok := c.lookup(host); ok {
			return e, nil
		}
		c.mu.Lock()
		c.fetches++
		c.mu.Unlock()
		// Detached from the starting caller: every waiter gets the host's
		// answer. p.Timeout still bounds the fetch.
		data, err := p.fetch(context.WithoutCancel(ctx), host, userAgent)
		e := entry{data: data, err: err}
		c.store(host, e)
		return e, nil
	})
	select {
	case res := <-ch:
		return res.Val.(entry)
	case <-ctx.Done():
		return entry{err: fmt.Errorf("robots check: %w", ctx.Err())}
	}
}

func (p *Policy) fetch(ctx context.Context, host, userAgent string) (*robotstxt.RobotsData, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	robotsURL := host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	ua := p.UserAgent
	if ua == "" {
		ua = userAgent
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer resp.Body.Close()
	// Any non-2xx is a failure (allowed), never disallow-all.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("robots status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read robots: %w", err)
	}
	if len(body) > maxRobotsBytes || bytes.IndexByte(body, 0) >= 0 {
		return nil, errMalformed
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	log.Debug().Str("host", host).Int("bytes", len(body)).Msg("robots.txt loaded")
	return data, nil
}

// hostKey returns the normalised scheme://authority used as cache key.
func hostKey(u *url.URL) (string, error) {
	base := u.Scheme + "://" + u.Host
	norm, err := purell.NormalizeURLString(base, purell.FlagLowercaseScheme|purell.FlagLowercaseHost|purell.FlagRemoveDefaultPort|purell.FlagRemoveTrailingSlash)
	if err != nil {
		return "", fmt.Errorf("normalize host: %w", err)
	}
	return strings.TrimSuffix(norm, "/"), nil
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
