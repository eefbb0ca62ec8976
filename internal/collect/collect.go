package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webresearch/internal/fetch"
	"github.com/hyperifyio/webresearch/internal/search"
	selecter "github.com/hyperifyio/webresearch/internal/select"
)

const (
	// DefaultDelay is the politeness wait between fetch windows.
	DefaultDelay = 500 * time.Millisecond
	// DefaultQueryPrefix turns a topic into a news query.
	DefaultQueryPrefix = "latest news "
	// overfetch is how many extra search results are requested to absorb
	// fetch failures.
	overfetch       = 2
	truncatedMarker = "..."
)

// Collector searches a topic and fetches the top results until it has
// enough readable articles.
type Collector struct {
	Search  *search.Client
	Fetcher *fetch.Fetcher
	// Delay is waited before every fetch window after the first. Zero means
	// 500ms; negative disables the wait.
	Delay time.Duration
	// Workers is the number of fetches run at once. Zero means 1.
	Workers int
	// Retries is the number of extra attempts for transient fetch failures.
	Retries int
	// PerDomain caps candidates per host. Zero means no cap.
	PerDomain int
	// MinSnippetChars drops search results with shorter snippets before
	// fetching. Zero keeps every result.
	MinSnippetChars int
	// Canonical dedupes candidates on a canonical URL (fragment dropped,
	// host lower-cased, default port removed).
	Canonical bool
	// QueryPrefix is prepended to the topic. Empty means "latest news ".
	QueryPrefix string
}

// Article is one successfully fetched source.
type Article struct {
	URL           string
	Title         string
	Text          string
	Truncated     bool
	LowConfidence bool
}

// Skip records a candidate that did not yield an article.
type Skip struct {
	URL    string
	Kind   fetch.Kind
	Reason string
}

// ArticleSet is the result of one Collect run. Articles are in discovery
// order and ProcessedCount == len(Articles).
type ArticleSet struct {
	Topic          string
	Query          string
	Articles       []Article
	ProcessedCount int
	Skipped        []Skip
	// Err is set when the search itself failed.
	Err error
}

// Collect gathers up to target articles about topic, each truncated to
// maxChars characters (no limit when maxChars <= 0). Fetch failures are
// skipped; cancellation returns what was collected so far.
func (c *Collector) Collect(ctx context.Context, topic string, target, maxChars int) ArticleSet {
	set := ArticleSet{Topic: topic}
	if target <= 0 {
		return set
	}
	if c.Search == nil || c.Fetcher == nil {
		set.Err = errors.New("collect: search client and fetcher are required")
		return set
	}
	set.Query = c.queryPrefix() + topic

	results, err := c.Search.Search(ctx, set.Query, target+overfetch)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("news search failed")
		set.Err = err
		return set
	}
	candidates := selecter.Candidates(results, selecter.Options{
		MaxTotal:        target + overfetch,
		PerDomain:       c.PerDomain,
		Canonical:       c.Canonical,
		MinSnippetChars: c.MinSnippetChars,
	})
	if len(candidates) == 0 {
		log.Info().Str("topic", topic).Str("query", set.Query).Msg("no search results")
		return set
	}
	log.Debug().Str("topic", topic).Int("candidates", len(candidates)).Int("target", target).Msg("collecting articles")

	next := 0
	for next < len(candidates) && len(set.Articles) < target {
		if next > 0 && !c.wait(ctx) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		window := min(c.workers(), target-len(set.Articles), len(candidates)-next)
		batch := candidates[next : next+window]
		next += window

		outcomes := c.fetchWindow(ctx, batch)
		for i, out := range outcomes {
			r := batch[i]
			if !out.OK() {
				log.Warn().Str("url", r.URL).Str("kind", out.Kind.String()).Msg("fetch failed; skipping source")
				set.Skipped = append(set.Skipped, Skip{URL: r.URL, Kind: out.Kind, Reason: out.Reason()})
				continue
			}
			text, truncated := Truncate(out.Text, maxChars)
			set.Articles = append(set.Articles, Article{
				URL:           r.URL,
				Title:         pickNonEmpty(out.Title, r.Title),
				Text:          text,
				Truncated:     truncated,
				LowConfidence: out.LowConfidence,
			})
		}
	}
	set.ProcessedCount = len(set.Articles)
	if set.ProcessedCount == 0 {
		log.Info().Str("topic", topic).Int("skipped", len(set.Skipped)).Msg("no usable content from any candidate")
	} else {
		log.Info().Str("topic", topic).Int("articles", set.ProcessedCount).Int("skipped", len(set.Skipped)).Msg("articles collected")
	}
	return set
}

// fetchWindow fetches every result in batch concurrently and returns the
// outcomes in batch order.
func (c *Collector) fetchWindow(ctx context.Context, batch []search.Result) []fetch.Outcome {
	outcomes := make([]fetch.Outcome, len(batch))
	if len(batch) == 1 {
		outcomes[0] = c.fetchOne(ctx, batch[0].URL)
		return outcomes
	}
	var wg sync.WaitGroup
	for i, r := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = c.fetchOne(ctx, r.URL)
		}()
	}
	wg.Wait()
	return outcomes
}

func (c *Collector) fetchOne(ctx context.Context, rawURL string) fetch.Outcome {
	return fetch.Retry(ctx, c.Retries+1, 0, func() fetch.Outcome {
		return c.Fetcher.Fetch(ctx, rawURL, "", 0)
	})
}

// wait sleeps for the politeness delay and reports false if ctx ended first.
func (c *Collector) wait(ctx context.Context) bool {
	d := c.Delay
	if d == 0 {
		d = DefaultDelay
	}
	if d < 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Collector) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 1
}

func (c *Collector) queryPrefix() string {
	if c.QueryPrefix != "" {
		return c.QueryPrefix
	}
	return DefaultQueryPrefix
}

// Truncate shortens text to at most max characters, ending with "..." when
// anything was cut. max <= 0 means no limit.
func Truncate(text string, max int) (string, bool) {
	if max <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text, false
	}
	if max <= len(truncatedMarker) {
		return string(runes[:max]), true
	}
	return string(runes[:max-len(truncatedMarker)]) + truncatedMarker, true
}

func pickNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// String renders the articles as one text document with a source marker
// before each article.
func (s ArticleSet) String() string {
	if len(s.Articles) == 0 {
		if s.Err != nil {
			return fmt.Sprintf("No usable content could be retrieved for '%s': %v", s.Topic, s.Err)
		}
		return fmt.Sprintf("No usable content could be retrieved for '%s'.", s.Topic)
	}
	var b strings.Builder
	for _, a := range s.Articles {
		fmt.Fprintf(&b, "--- News Article Source: %s ---\n\n", a.URL)
		b.WriteString(a.Text)
		b.WriteString("\n\n---\n\n")
	}
	return strings.TrimSpace(b.String())
}
