package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	duckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"
	duckDuckGoAPIURL  = "https://api.duckduckgo.com/"
)

// DuckDuckGo implements Provider by reading the keyless HTML results page.
type DuckDuckGo struct {
	// BaseURL overrides the HTML endpoint; used by tests.
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	// Region is passed as kl (e.g. "us-en"). Optional.
	Region string
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	base := d.BaseURL
	if base == "" {
		base = duckDuckGoHTMLURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	if d.Region != "" {
		q.Set("kl", d.Region)
	}
	u.RawQuery = q.Encode()

	resp, err := get(ctx, d.HTTPClient, u.String(), d.UserAgent, "text/html")
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse results: %w", err)
	}
	out := make([]Result, 0, limit)
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		href, _ := link.Attr("href")
		target := unwrapDuckDuckGoLink(href)
		title := strings.TrimSpace(link.Text())
		if target == "" || title == "" {
			return true
		}
		out = append(out, Result{
			Title:   title,
			URL:     target,
			Snippet: strings.Join(strings.Fields(s.Find(".result__snippet").First().Text()), " "),
			Source:  d.Name(),
		})
		return len(out) < limit
	})
	return out, nil
}

// unwrapDuckDuckGoLink resolves the /l/?uddg= redirect wrapper to the target
// URL. Links that are not wrapped are returned as absolute URLs.
func unwrapDuckDuckGoLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasPrefix(u.Path, "/l") {
		return target
	}
	if u.Scheme == "" {
		return ""
	}
	return u.String()
}

// DuckDuckGoAnswers implements Answerer with the Instant Answer API.
type DuckDuckGoAnswers struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

func (d *DuckDuckGoAnswers) Answer(ctx context.Context, query string) (string, error) {
	base := d.BaseURL
	if base == "" {
		base = duckDuckGoAPIURL
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	resp, err := get(ctx, d.HTTPClient, base+"?"+params.Encode(), d.UserAgent, "application/json")
	if err != nil {
		return "", fmt.Errorf("duckduckgo answers: %w", err)
	}
	defer resp.Body.Close()

	var r struct {
		Answer       string `json:"Answer"`
		AbstractText string `json:"AbstractText"`
		Definition   string `json:"Definition"`
		Heading      string `json:"Heading"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("duckduckgo answers: decode: %w", err)
	}
	for _, s := range []string{r.Answer, r.AbstractText, r.Definition} {
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
	}
	return "", nil
}

// get issues a GET and fails on non-2xx statuses. The caller closes the body.
func get(ctx context.Context, hc *http.Client, rawURL, userAgent, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("status: %d", resp.StatusCode)
	}
	return resp, nil
}
