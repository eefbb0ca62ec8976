package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperifyio/webresearch/internal/search"
)

// newSite serves robots.txt disallowing /private and long HTML articles
// everywhere else.
func newSite(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var robotsHits int32
	body := strings.Repeat("Go release notes describe new language features in detail. ", 10)
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&robotsHits, 1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>%s</title></head><body><article><p>%s</p></article></body></html>", r.URL.Path, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &robotsHits
}

func fileConfig(t *testing.T, results []search.Result, answers map[string]string) Config {
	t.Helper()
	dir := t.TempDir()
	b, err := json.Marshal(results)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, "results.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := DefaultConfig()
	cfg.SearchProvider = ProviderFile
	cfg.FileSearchPath = path
	cfg.PoliteDelay = 0
	if answers != nil {
		ab, _ := json.Marshal(answers)
		cfg.FileAnswersPath = filepath.Join(dir, "answers.json")
		if err := os.WriteFile(cfg.FileAnswersPath, ab, 0o600); err != nil {
			t.Fatalf("write answers: %v", err)
		}
	}
	return cfg
}

func TestSession_NewsEndToEnd(t *testing.T) {
	srv, robotsHits := newSite(t)
	cfg := fileConfig(t, []search.Result{
		{Title: "Latest news golang 1", URL: srv.URL + "/private/a", Snippet: "s"},
		{Title: "Latest news golang 2", URL: srv.URL + "/news/b", Snippet: "s"},
		{Title: "Latest news golang 3", URL: srv.URL + "/news/c", Snippet: "s"},
	}, nil)

	s, err := NewWithClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	var out strings.Builder
	err = s.Run(context.Background(), Command{Name: CommandNews, Args: []string{"golang"}, Articles: 2, MaxChars: 80}, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.String()
	if strings.Contains(text, "/private/a") {
		t.Fatalf("disallowed URL must not appear:\n%s", text)
	}
	if !strings.Contains(text, "--- News Article Source: "+srv.URL+"/news/b ---") ||
		!strings.Contains(text, "--- News Article Source: "+srv.URL+"/news/c ---") {
		t.Fatalf("missing article blocks:\n%s", text)
	}
	if n := atomic.LoadInt32(robotsHits); n != 1 {
		t.Fatalf("expected one robots.txt fetch per host, got %d", n)
	}
}

func TestSession_SearchWithAnswers(t *testing.T) {
	srv, _ := newSite(t)
	cfg := fileConfig(t, []search.Result{
		{Title: "Langchain docs", URL: srv.URL + "/a", Snippet: "Framework for LLM apps"},
		{Title: "Langchain repo", URL: srv.URL + "/b", Snippet: "Source code"},
	}, map[string]string{"langchain": "LangChain is a framework."})

	s, err := NewWithClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	var out strings.Builder
	err = s.Run(context.Background(), Command{Name: CommandSearch, Args: []string{"Langchain", "Google Gemma"}, MaxResults: 5}, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.String()
	if strings.Contains(text, "All Sources") {
		t.Fatalf("merged block should be opt-in:\n%s", text)
	}
	for _, want := range []string{
		"--- Results for Query: 'Langchain' ---\nTop Answer - LangChain is a framework.",
		"--- Results for Query: 'Google Gemma' ---",
		"No wider result found.",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}

func TestSession_SearchMerged(t *testing.T) {
	srv, _ := newSite(t)
	cfg := fileConfig(t, []search.Result{
		{Title: "Docs", URL: srv.URL + "/a?utm_source=feed", Snippet: "one"},
		{Title: "Repo", URL: srv.URL + "/b", Snippet: "two"},
	}, nil)
	s, err := NewWithClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	var out strings.Builder
	cmd := Command{Name: CommandSearch, Args: []string{"docs", "repo"}, MaxResults: 5, Merged: true}
	if err := s.Run(context.Background(), cmd, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "--- All Sources ---\n1. Docs - " + srv.URL + "/a\n2. Repo - " + srv.URL + "/b"
	if !strings.HasSuffix(strings.TrimSpace(out.String()), want) {
		t.Fatalf("missing merged block %q in:\n%s", want, out.String())
	}
}

func TestNewWithClient_WiresPolicyAndCandidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UserAgent = "webresearch-test/2.0"
	cfg.SearchRegion = "fi-fi"
	cfg.MinSnippetChars = 15
	cfg.CanonicalURLs = true
	s, err := NewWithClient(cfg, http.DefaultClient)
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	if s.Robots.UserAgent != "webresearch-test/2.0" {
		t.Fatalf("robots policy User-Agent = %q", s.Robots.UserAgent)
	}
	if ddg, ok := s.Search.Provider.(*search.DuckDuckGo); !ok || ddg.Region != "fi-fi" {
		t.Fatalf("expected DuckDuckGo with region, got %#v", s.Search.Provider)
	}
	if s.Collector.MinSnippetChars != 15 || !s.Collector.Canonical {
		t.Fatalf("collector candidate options not wired: %+v", s.Collector)
	}
}

func TestSession_NoUsableContent(t *testing.T) {
	srv, _ := newSite(t)
	cfg := fileConfig(t, nil, nil)
	s, err := NewWithClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	var out strings.Builder
	err = s.Run(context.Background(), Command{Name: CommandNews, Args: []string{"asdfqwerlkjhzxcv"}, Articles: 2, MaxChars: 4000}, &out)
	if !errors.Is(err, ErrNoUsableContent) {
		t.Fatalf("expected ErrNoUsableContent, got %v", err)
	}
	if !strings.Contains(out.String(), "No usable content") {
		t.Fatalf("rendering should still be written, got %q", out.String())
	}

	out.Reset()
	err = s.Run(context.Background(), Command{Name: CommandScrape, Args: []string{srv.URL + "/private/x"}}, &out)
	if !errors.Is(err, ErrNoUsableContent) {
		t.Fatalf("scrape of disallowed URL: expected ErrNoUsableContent, got %v", err)
	}
}

func TestSession_RunErrors(t *testing.T) {
	srv, _ := newSite(t)
	s, err := NewWithClient(fileConfig(t, nil, nil), srv.Client())
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	var out strings.Builder
	for _, cmd := range []Command{{Name: "launch"}, {Name: CommandSearch}, {Name: CommandNews, Args: []string{" "}}} {
		if err := s.Run(context.Background(), cmd, &out); !errors.Is(err, ErrUsage) {
			t.Fatalf("%+v: expected usage error, got %v", cmd, err)
		}
	}
}

func TestNewProvider(t *testing.T) {
	hc := http.DefaultClient
	cases := []struct {
		cfg        Config
		name       string
		wantAnswer bool
	}{
		{Config{SearchProvider: ProviderSearxNG, SearxURL: "http://s"}, "searxng", true},
		{Config{SearchProvider: ProviderBrave, BraveAPIKey: "k"}, "brave", true},
		{Config{}, "duckduckgo", true},
		{Config{FileSearchPath: "r.json"}, "file", false},
		{Config{FileSearchPath: "r.json", FileAnswersPath: "a.json"}, "file", true},
	}
	for _, tc := range cases {
		p, a, err := NewProvider(tc.cfg, hc)
		if err != nil {
			t.Fatalf("NewProvider(%+v): %v", tc.cfg, err)
		}
		if p.Name() != tc.name || (a != nil) != tc.wantAnswer {
			t.Fatalf("NewProvider(%+v) = %s, answerer=%v", tc.cfg, p.Name(), a != nil)
		}
	}
	if _, _, err := NewProvider(Config{SearchProvider: "gopher"}, hc); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SearchProvider = ProviderBrave
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}
