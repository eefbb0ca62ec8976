package search

import (
	"context"
	"net/url"
	"strings"
)

// Result represents a single search hit from any provider.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"` // provider name for observability
}

// Provider is a minimal interface for search providers.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}

// Answerer returns a short, direct answer for a query. An empty answer with
// a nil error means the backend had nothing concise to say.
type Answerer interface {
	Answer(ctx context.Context, query string) (string, error)
}

// DomainPolicy allows callers to filter results by host.
// Denylist takes precedence over Allowlist. Entries match the host itself and
// any subdomain of it.
type DomainPolicy struct {
	Allowlist []string
	Denylist  []string
}

// Filter drops results whose host is denied, or not allowed when an
// allowlist is present. A nil policy keeps everything.
func (p *DomainPolicy) Filter(results []Result) []Result {
	if p == nil || (len(p.Allowlist) == 0 && len(p.Denylist) == 0) {
		return results
	}
	out := results[:0:0]
	for _, r := range results {
		if p.Permits(r.URL) {
			out = append(out, r)
		}
	}
	return out
}

// Permits reports whether rawURL passes the policy.
func (p *DomainPolicy) Permits(rawURL string) bool {
	if p == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if matchesAny(host, p.Denylist) {
		return false
	}
	if len(p.Allowlist) == 0 {
		return true
	}
	return matchesAny(host, p.Allowlist)
}

func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
