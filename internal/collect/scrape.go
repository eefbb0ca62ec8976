package collect

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webresearch/internal/fetch"
)

// Page is the outcome of scraping one caller-given URL.
type Page struct {
	URL     string
	Outcome fetch.Outcome
}

// Scrape fetches each URL in order, waiting the politeness delay between
// fetches, and returns one Page per URL. Blank entries are dropped.
// Cancellation stops the run and returns the pages fetched so far.
func (c *Collector) Scrape(ctx context.Context, urls []string) []Page {
	pages := make([]Page, 0, len(urls))
	if c.Fetcher == nil {
		return pages
	}
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if len(pages) > 0 && !c.wait(ctx) {
			break
		}
		out := c.fetchOne(ctx, raw)
		if !out.OK() {
			log.Warn().Str("url", raw).Str("kind", out.Kind.String()).Msg("scrape failed")
		}
		pages = append(pages, Page{URL: raw, Outcome: out})
	}
	return pages
}

// ScrapeText renders scraped pages as one text document.
func ScrapeText(pages []Page) string {
	if len(pages) == 0 {
		return "No URLs were provided to scrape."
	}
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Outcome.OK() {
			parts = append(parts, "--- Content from "+p.URL+" ---\n"+p.Outcome.Text+"\n")
			continue
		}
		parts = append(parts, "--- Failed to scrape content from "+p.URL+" ---\n")
	}
	return strings.Join(parts, "\n")
}
