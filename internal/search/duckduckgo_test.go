package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const ddgResultsHTML = `<html><body>
<div class="result result--ad"><a class="result__a" href="https://ads.example/x">Sponsored</a></div>
<div class="result results_links web-result">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fnews%3Fid%3D1&amp;rut=abc">Example <b>News</b></a></h2>
  <a class="result__snippet" href="#">First   snippet
  text</a>
</div>
<div class="result"><a class="result__a" href="https://direct.example/page">Direct</a><div class="result__snippet">Second</div></div>
<div class="result"><a class="result__a" href="">No link</a></div>
</body></html>`

func TestDuckDuckGo_Search_ParsesHTML(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(ddgResultsHTML))
	}))
	defer srv.Close()

	d := &DuckDuckGo{BaseURL: srv.URL + "/html/", HTTPClient: srv.Client()}
	got, err := d.Search(context.Background(), "latest news go", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "latest news go" {
		t.Fatalf("unexpected q: %q", gotQuery)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 organic results, got %d: %+v", len(got), got)
	}
	if got[0].URL != "https://example.com/news?id=1" || got[0].Title != "Example News" || got[0].Snippet != "First snippet text" {
		t.Fatalf("unexpected first result: %+v", got[0])
	}
	if got[1].URL != "https://direct.example/page" {
		t.Fatalf("unexpected second url: %q", got[1].URL)
	}

	limited, err := d.Search(context.Background(), "q", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit 1 to return 1 result, got %d (%v)", len(limited), err)
	}
}

func TestUnwrapDuckDuckGoLink(t *testing.T) {
	cases := map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.example%2F": "https://a.example/",
		"https://b.example/x": "https://b.example/x",
		"/relative":           "",
		"":                    "",
	}
	for in, want := range cases {
		if got := unwrapDuckDuckGoLink(in); got != want {
			t.Fatalf("unwrap(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDuckDuckGoAnswers_PrefersAnswerThenAbstract(t *testing.T) {
	body := `{"Answer":"","AbstractText":"Gemma is a family of open models.","Definition":"def"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	a := &DuckDuckGoAnswers{BaseURL: srv.URL + "/", HTTPClient: srv.Client()}
	got, err := a.Answer(context.Background(), "Google Gemma")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got != "Gemma is a family of open models." {
		t.Fatalf("unexpected answer %q", got)
	}
}
