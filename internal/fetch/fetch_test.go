package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/webresearch/internal/extract"
	"github.com/hyperifyio/webresearch/internal/robots"
)

const articleHTML = `<html><head><title>Hello</title></head><body><nav>menu</nav>
<article><p>The quick brown fox jumps over the lazy dog.</p></article></body></html>`

func newSite(t *testing.T, robotsTxt string, page http.HandlerFunc) (*httptest.Server, *int32, *int32) {
	t.Helper()
	var robotsHits, pageHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&robotsHits, 1)
		if robotsTxt == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(robotsTxt))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pageHits, 1)
		page(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &robotsHits, &pageHits
}

func serveHTML(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}
}

func newFetcher(srv *httptest.Server) *Fetcher {
	return &Fetcher{
		HTTPClient: srv.Client(),
		Robots:     &robots.Policy{HTTPClient: srv.Client(), Cache: robots.NewCache()},
		UserAgent:  "webresearch-test",
		Timeout:    2 * time.Second,
	}
}

func TestFetch_Success(t *testing.T) {
	var gotUA string
	srv, _, _ := newSite(t, "User-agent: *\nDisallow:\n", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		serveHTML(articleHTML)(w, r)
	})

	out := newFetcher(srv).Fetch(context.Background(), srv.URL+"/post", "", 0)
	if out.Kind != KindSuccess {
		t.Fatalf("expected success, got %s (%v)", out.Kind, out.Err)
	}
	if out.Text != "The quick brown fox jumps over the lazy dog." {
		t.Fatalf("unexpected text: %q", out.Text)
	}
	if out.Title != "Hello" || out.ByteLength != len(articleHTML) || out.StatusCode != 200 {
		t.Fatalf("unexpected outcome fields: %+v", out)
	}
	if gotUA != "webresearch-test" {
		t.Fatalf("expected configured user agent, got %q", gotUA)
	}
}

func TestFetch_DisallowedNeverRequestsContent(t *testing.T) {
	srv, _, pageHits := newSite(t, "User-agent: *\nDisallow: /private\n", serveHTML(articleHTML))

	out := newFetcher(srv).Fetch(context.Background(), srv.URL+"/page", "", 0)
	if out.Kind != KindDisallowed {
		t.Fatalf("expected disallowed, got %s", out.Kind)
	}
	if n := atomic.LoadInt32(pageHits); n != 0 {
		t.Fatalf("expected no content request, got %d", n)
	}
}

func TestFetch_RobotsFetchedOncePerHost(t *testing.T) {
	srv, robotsHits, _ := newSite(t, "User-agent: *\nAllow: /\n", serveHTML(articleHTML))
	f := newFetcher(srv)
	for _, p := range []string{"/a", "/b", "/c"} {
		if out := f.Fetch(context.Background(), srv.URL+p, "", 0); out.Kind != KindSuccess {
			t.Fatalf("%s: expected success, got %s", p, out.Kind)
		}
	}
	if n := atomic.LoadInt32(robotsHits); n != 1 {
		t.Fatalf("expected one robots.txt fetch, got %d", n)
	}
}

func TestFetch_CancelledContextNeverRequestsContent(t *testing.T) {
	srv, _, pageHits := newSite(t, "User-agent: *\nDisallow: /private\n", serveHTML(articleHTML))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := newFetcher(srv).Fetch(ctx, srv.URL+"/page", "", 0)
	if out.OK() || out.Kind == KindDisallowed {
		t.Fatalf("expected a transport outcome for a cancelled caller, got %s", out.Kind)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", out.Err)
	}
	if got := atomic.LoadInt32(pageHits); got != 0 {
		t.Fatalf("expected no page request, got %d", got)
	}
}

func TestFetch_MissingRobotsAllows(t *testing.T) {
	srv, _, _ := newSite(t, "", serveHTML(articleHTML))
	if out := newFetcher(srv).Fetch(context.Background(), srv.URL+"/x", "", 0); out.Kind != KindSuccess {
		t.Fatalf("expected success with missing robots.txt, got %s", out.Kind)
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv, _, _ := newSite(t, "", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	out := newFetcher(srv).Fetch(context.Background(), srv.URL+"/slow", "", 100*time.Millisecond)
	if out.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %s (%v)", out.Kind, out.Err)
	}
}

func TestFetch_HTTPStatus(t *testing.T) {
	srv, _, _ := newSite(t, "", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	out := newFetcher(srv).Fetch(context.Background(), srv.URL+"/missing", "", 0)
	if out.Kind != KindHTTPError || out.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 http error, got %s %d", out.Kind, out.StatusCode)
	}
	if out.Transient() {
		t.Fatalf("404 should not be transient")
	}
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := &Fetcher{Timeout: time.Second}
	out := f.Fetch(context.Background(), addr+"/x", "", 0)
	if out.Kind != KindHTTPError || out.StatusCode != StatusTransportError {
		t.Fatalf("expected transport error, got %s %d", out.Kind, out.StatusCode)
	}
	if !out.Transient() {
		t.Fatalf("transport faults should be transient")
	}
}

func TestFetch_RejectsNonHTTP(t *testing.T) {
	f := &Fetcher{}
	for _, u := range []string{"file:///etc/hosts", "ftp://example.com/x", "://bad"} {
		out := f.Fetch(context.Background(), u, "", 0)
		if out.Kind != KindHTTPError || out.StatusCode != StatusTransportError {
			t.Fatalf("%q: expected transport error, got %s %d", u, out.Kind, out.StatusCode)
		}
	}
}

func TestFetch_ContentTypeGating(t *testing.T) {
	srv, _, _ := newSite(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	})
	out := newFetcher(srv).Fetch(context.Background(), srv.URL+"/doc.pdf", "", 0)
	if out.Kind != KindUnsupportedContentType || out.ContentType != "application/pdf" {
		t.Fatalf("expected unsupported content type, got %s %q", out.Kind, out.ContentType)
	}
	if !errors.Is(out.Err, extract.ErrUnsupportedContentType) {
		t.Fatalf("expected wrapped sentinel, got %v", out.Err)
	}
}

func TestFetch_ParseFailure(t *testing.T) {
	srv, _, _ := newSite(t, "", serveHTML(`<html><body><nav>Home</nav><script>x()</script></body></html>`))
	out := newFetcher(srv).Fetch(context.Background(), srv.URL+"/empty", "", 0)
	if out.Kind != KindParseFailure {
		t.Fatalf("expected parse failure, got %s", out.Kind)
	}
}

func TestFetch_RedirectLimit(t *testing.T) {
	// First path redirects once to /next; with RedirectMaxHops=1 this should fail immediately
	srv, _, _ := newSite(t, "", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		serveHTML(articleHTML)(w, r)
	})
	f := newFetcher(srv)
	f.RedirectMaxHops = 1
	out := f.Fetch(context.Background(), srv.URL+"/start", "", 0)
	if out.Kind != KindHTTPError || out.StatusCode != StatusTransportError {
		t.Fatalf("expected redirect limit error, got %s %d", out.Kind, out.StatusCode)
	}
}

func TestFetch_BodyCapped(t *testing.T) {
	page := "<html><body><article><p>" + strings.Repeat("a", 4096) + "</p></article></body></html>"
	srv, _, _ := newSite(t, "", serveHTML(page))
	f := newFetcher(srv)
	f.MaxBodyBytes = 1024
	out := f.Fetch(context.Background(), srv.URL+"/big", "", 0)
	if out.Kind != KindSuccess {
		t.Fatalf("expected success on truncated body, got %s", out.Kind)
	}
	if out.ByteLength != 1024 {
		t.Fatalf("expected 1024 bytes read, got %d", out.ByteLength)
	}
}

func TestFetch_MaxConcurrent(t *testing.T) {
	var inFlight, maxObserved int32
	srv, _, _ := newSite(t, "", func(w http.ResponseWriter, r *http.Request) {
		curr := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxObserved)
			if curr <= prev || atomic.CompareAndSwapInt32(&maxObserved, prev, curr) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		serveHTML(articleHTML)(w, r)
	})
	f := newFetcher(srv)
	f.Robots = nil
	f.MaxConcurrent = 2

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = f.Fetch(context.Background(), srv.URL+"/p", "", 0)
		}()
	}
	close(start)
	wg.Wait()

	if maxObserved > 2 {
		t.Fatalf("expected max concurrency <= 2, got %d", maxObserved)
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	var calls int32
	srv, _, _ := newSite(t, "", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		serveHTML(articleHTML)(w, r)
	})
	f := newFetcher(srv)
	out := Retry(context.Background(), 3, 10*time.Millisecond, func() Outcome {
		return f.Fetch(context.Background(), srv.URL+"/flaky", "", 0)
	})
	if out.Kind != KindSuccess {
		t.Fatalf("expected success after retry, got %s", out.Kind)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestRetry_PermanentNotRetried(t *testing.T) {
	var calls int
	out := Retry(context.Background(), 5, time.Millisecond, func() Outcome {
		calls++
		return Outcome{Kind: KindDisallowed}
	})
	if out.Kind != KindDisallowed || calls != 1 {
		t.Fatalf("expected one call with disallowed outcome, got %d calls and %s", calls, out.Kind)
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	out := Retry(ctx, 5, time.Hour, func() Outcome {
		calls++
		cancel()
		return Outcome{Kind: KindTimeout}
	})
	if out.Kind != KindTimeout || calls != 1 {
		t.Fatalf("expected single attempt after cancel, got %d calls", calls)
	}
}
