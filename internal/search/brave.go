package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const braveBaseURL = "https://api.search.brave.com/res/v1"

// Brave implements Provider and Answerer against the Brave Search web API.
type Brave struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	// The API caps count at 20.
	count := limit
	if count > 20 {
		count = 20
	}
	r, err := b.query(ctx, query, count)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(r.Web.Results))
	for _, w := range r.Web.Results {
		if w.URL == "" || w.Title == "" {
			continue
		}
		out = append(out, Result{
			Title:   plainText(w.Title),
			URL:     strings.TrimSpace(w.URL),
			Snippet: plainText(w.Description),
			Source:  b.Name(),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Answer returns the infobox description when Brave has one.
func (b *Brave) Answer(ctx context.Context, query string) (string, error) {
	r, err := b.query(ctx, query, 1)
	if err != nil {
		return "", err
	}
	if r.Infobox == nil {
		return "", nil
	}
	for _, ib := range r.Infobox.Results {
		if d := plainText(ib.LongDesc); d != "" {
			return d, nil
		}
		if d := plainText(ib.Description); d != "" {
			return d, nil
		}
	}
	return "", nil
}

func (b *Brave) query(ctx context.Context, query string, count int) (*braveResponse, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, errors.New("brave: missing api key")
	}
	base := b.BaseURL
	if base == "" {
		base = braveBaseURL
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", fmt.Sprintf("%d", count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	hc := b.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("brave status: %d", resp.StatusCode)
	}
	var r braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("brave: decode: %w", err)
	}
	return &r, nil
}

// plainText strips the highlight markup Brave embeds in titles and snippets.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
	Infobox *struct {
		Results []struct {
			Description string `json:"description"`
			LongDesc    string `json:"long_desc"`
		} `json:"results"`
	} `json:"infobox"`
}
