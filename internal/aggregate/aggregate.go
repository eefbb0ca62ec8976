package aggregate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/webresearch/internal/search"
)

const noHeadline = "No headline result found."

// Aggregator runs a batch of queries and assembles one report section per
// query: a headline answer plus the top sources.
type Aggregator struct {
	Search *search.Client
	// Concurrency bounds in-flight headline lookups. Zero means 3.
	Concurrency int
}

// Section is the per-query part of a Report.
type Section struct {
	Query    string
	Headline string
	Sources  []search.Result
	// Err is set when the source search for this query failed.
	Err error
}

// Report holds one Section per input query, in input order. Failure is set
// when no query could be searched at all.
type Report struct {
	Sections []Section
	Failure  string
}

// Aggregate searches every query for up to maxResults sources and returns
// exactly len(queries) sections in input order. It never fails as a whole;
// per-query errors are carried on the sections.
func (a *Aggregator) Aggregate(ctx context.Context, queries []string, maxResults int) Report {
	rep := Report{Sections: make([]Section, len(queries))}
	for i, q := range queries {
		rep.Sections[i].Query = q
	}
	if len(queries) == 0 {
		return rep
	}
	if a.Search == nil {
		err := errors.New("aggregate: no search client configured")
		for i := range rep.Sections {
			rep.Sections[i].Err = err
			rep.Sections[i].Headline = noHeadline
		}
		rep.Failure = failureNote(queries, err)
		return rep
	}

	batches := a.Search.SearchBatch(ctx, queries, maxResults)
	for i, b := range batches {
		rep.Sections[i].Sources = b.Results
		rep.Sections[i].Err = b.Err
	}

	var g errgroup.Group
	g.SetLimit(a.concurrency())
	for i := range rep.Sections {
		g.Go(func() error {
			rep.Sections[i].Headline = a.headline(ctx, rep.Sections[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	var firstErr error
	for _, s := range rep.Sections {
		if s.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = s.Err
			}
		}
	}
	if failed == len(queries) {
		rep.Failure = failureNote(queries, firstErr)
		log.Warn().Err(firstErr).Int("queries", len(queries)).Msg("batch search failed for every query")
	} else {
		log.Info().Int("queries", len(queries)).Int("failed", failed).Msg("batch search aggregated")
	}
	return rep
}

// headline prefers the answerer's answer, then the first source's snippet,
// then a fixed placeholder. It never searches again.
func (a *Aggregator) headline(ctx context.Context, s Section) string {
	ans, err := a.Search.Answer(ctx, s.Query)
	if err != nil {
		log.Debug().Err(err).Str("query", s.Query).Msg("headline lookup failed")
	} else if ans != "" {
		return ans
	}
	for _, r := range s.Sources {
		if snippet := strings.TrimSpace(r.Snippet); snippet != "" {
			return snippet
		}
	}
	return noHeadline
}

func (a *Aggregator) concurrency() int {
	if a.Concurrency > 0 {
		return a.Concurrency
	}
	return search.DefaultConcurrency
}

func failureNote(queries []string, err error) string {
	note := "No search results could be retrieved for the queries: " + strings.Join(queries, ", ")
	if err != nil {
		note += fmt.Sprintf(" (%v)", err)
	}
	return note
}

// String renders the report as plain text, one block per query.
func (r Report) String() string {
	if r.Failure != "" {
		return r.Failure
	}
	var b strings.Builder
	for i, s := range r.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Results for Query: '%s' ---\n", s.Query)
		headline := s.Headline
		if headline == "" {
			headline = noHeadline
		}
		fmt.Fprintf(&b, "Top Answer - %s\n", headline)
		b.WriteString("Other Sources -")
		switch {
		case s.Err != nil:
			fmt.Fprintf(&b, " search failed: %v", s.Err)
		case len(s.Sources) == 0:
			b.WriteString(" No wider result found.")
		default:
			for j, src := range s.Sources {
				fmt.Fprintf(&b, "\n%d. %s - %s", j+1, src.Title, src.URL)
				if snippet := strings.TrimSpace(src.Snippet); snippet != "" {
					fmt.Fprintf(&b, "\n   %s", snippet)
				}
			}
		}
	}
	return b.String()
}

// MergedString renders Merged as an "All sources" block, or "" when there
// are no sources.
func (r Report) MergedString() string {
	merged := r.Merged()
	if len(merged) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("--- All Sources ---")
	for i, src := range merged {
		fmt.Fprintf(&b, "\n%d. %s - %s", i+1, src.Title, src.URL)
	}
	return b.String()
}

// Merged returns every section's sources as one normalized, deduplicated
// list in section order.
func (r Report) Merged() []search.Result {
	groups := make([][]search.Result, 0, len(r.Sections))
	for _, s := range r.Sections {
		groups = append(groups, s.Sources)
	}
	return MergeAndNormalize(groups)
}

// MergeAndNormalize merges results from multiple queries, canonicalizes URLs,
// trims obvious tracking parameters, and de-duplicates exact URLs.
func MergeAndNormalize(groups [][]search.Result) []search.Result {
	seen := map[string]struct{}{}
	out := make([]search.Result, 0, 64)
	for _, g := range groups {
		for _, r := range g {
			if r.URL == "" {
				continue
			}
			u, err := url.Parse(r.URL)
			if err != nil {
				continue
			}
			normalizeURL(u)
			key := u.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			r.URL = key
			out = append(out, r)
		}
	}
	return out
}

func normalizeURL(u *url.URL) {
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	q := u.Query()
	// Remove common tracking params
	for _, p := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
}
