package selecter

import (
	"net/url"
	"strings"

	"github.com/hyperifyio/webresearch/internal/search"
)

// Options configures selection constraints. The zero value dedupes by exact
// URL string and applies no other limits.
type Options struct {
	// MaxTotal stops selection after this many results. Zero means no limit.
	MaxTotal int
	// PerDomain caps results per host. Zero means no cap.
	PerDomain int
	// Canonical dedupes on a canonical form (fragment dropped, host
	// lower-cased, default port removed) instead of the exact string.
	Canonical bool
	// MinSnippetChars drops results whose snippet has fewer than this many
	// non-whitespace characters. Zero disables low-signal filtering.
	MinSnippetChars int
}

// Candidates returns fetch candidates in provider order: results without a
// URL are skipped and each URL is kept once.
func Candidates(results []search.Result, opt Options) []search.Result {
	domainCounts := map[string]int{}
	seenURL := map[string]struct{}{}

	out := make([]search.Result, 0, len(results))
	for _, r := range results {
		raw := strings.TrimSpace(r.URL)
		if raw == "" {
			continue
		}
		if opt.MinSnippetChars > 0 {
			// Treat very short snippets as low-signal and skip them early.
			if len(strings.Join(strings.Fields(r.Snippet), "")) < opt.MinSnippetChars {
				continue
			}
		}
		key := raw
		host := ""
		if u, err := url.Parse(raw); err == nil {
			host = strings.ToLower(u.Hostname())
			if opt.Canonical {
				key = canonicalizeURL(u)
			}
		}
		if _, ok := seenURL[key]; ok {
			continue
		}
		if opt.PerDomain > 0 && domainCounts[host] >= opt.PerDomain {
			continue
		}
		seenURL[key] = struct{}{}
		domainCounts[host]++
		r.URL = raw
		out = append(out, r)
		if opt.MaxTotal > 0 && len(out) >= opt.MaxTotal {
			break
		}
	}
	return out
}

func canonicalizeURL(u *url.URL) string {
	// drop fragments and default ports; lower-case host
	u2 := *u
	u2.Fragment = ""
	u2.Host = strings.ToLower(u2.Host)
	if (u2.Scheme == "http" && strings.HasSuffix(u2.Host, ":80")) || (u2.Scheme == "https" && strings.HasSuffix(u2.Host, ":443")) {
		u2.Host = u2.Hostname()
	}
	return u2.String()
}
