package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/hyperifyio/webresearch/internal/extract"
)

const (
	// DefaultUserAgent identifies the tool when no agent is configured.
	DefaultUserAgent = "webresearch/1.0 (+https://github.com/hyperifyio/webresearch)"
	// DefaultTimeout bounds one page fetch.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBodyBytes caps how much of a response body is read.
	DefaultMaxBodyBytes = 5 << 20

	defaultRedirectHops = 5
	acceptHeader        = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5"
)

// Checker decides whether a URL may be fetched by the given agent.
// *robots.Policy satisfies it.
type Checker interface {
	IsAllowed(ctx context.Context, rawURL, userAgent string) bool
}

// Fetcher retrieves one URL at a time, honouring robots.txt, and turns the
// response into an Outcome. It never retries; see Retry.
type Fetcher struct {
	HTTPClient *http.Client
	// Robots may be nil, in which case every URL is allowed.
	Robots    Checker
	Extractor extract.Extractor
	UserAgent string
	Timeout   time.Duration
	// MaxBodyBytes caps how much of a response body is read. Zero means 5 MiB.
	MaxBodyBytes int64
	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// MaxConcurrent limits concurrent in-flight requests per fetcher instance.
	// Zero means unlimited.
	MaxConcurrent int

	semOnce sync.Once
	sem     *semaphore.Weighted
}

// Fetch retrieves rawURL and extracts its readable text. Empty userAgent and
// zero timeout fall back to the fetcher's settings.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, userAgent string, timeout time.Duration) Outcome {
	out := f.fetch(ctx, rawURL, userAgent, timeout)
	ev := log.Debug().Str("url", rawURL).Str("kind", out.Kind.String())
	if out.StatusCode != 0 {
		ev = ev.Int("status", out.StatusCode)
	}
	if out.Err != nil {
		ev = ev.Err(out.Err)
	}
	ev.Int("bytes", out.ByteLength).Msg("fetch outcome")
	return out
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, userAgent string, timeout time.Duration) Outcome {
	if userAgent == "" {
		userAgent = f.userAgent()
	}
	if timeout <= 0 {
		timeout = f.timeout()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return transportError(fmt.Errorf("parse url: %w", err))
	}
	if !isHTTPScheme(u) || u.Host == "" {
		return transportError(fmt.Errorf("unsupported URL scheme: %q", rawURL))
	}

	if f.Robots != nil && !f.Robots.IsAllowed(ctx, rawURL, userAgent) {
		return Outcome{Kind: KindDisallowed}
	}
	if err := ctx.Err(); err != nil {
		return classifyTransport(err)
	}

	if err := f.acquire(ctx); err != nil {
		return classifyTransport(err)
	}
	defer f.release()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return transportError(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.getHTTPClient().Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{Kind: KindHTTPError, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	if !extract.IsHTML(contentType) {
		return Outcome{Kind: KindUnsupportedContentType, StatusCode: resp.StatusCode, ContentType: contentType,
			Err: fmt.Errorf("%w: %q", extract.ErrUnsupportedContentType, contentType)}
	}

	limit := f.maxBodyBytes()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return classifyTransport(fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > limit {
		log.Debug().Str("url", rawURL).Int64("limit", limit).Msg("response body truncated")
		body = body[:limit]
	}

	doc, err := f.extractor().Extract(extract.Page{URL: rawURL, ContentType: contentType, Body: body})
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedContentType) {
			return Outcome{Kind: KindUnsupportedContentType, StatusCode: resp.StatusCode, ContentType: contentType, Err: err}
		}
		return Outcome{Kind: KindParseFailure, StatusCode: resp.StatusCode, ContentType: contentType, ByteLength: len(body), Err: err}
	}
	return Outcome{
		Kind:          KindSuccess,
		Title:         doc.Title,
		Text:          doc.Text,
		ByteLength:    len(body),
		StatusCode:    resp.StatusCode,
		ContentType:   contentType,
		LowConfidence: doc.LowConfidence,
	}
}

func transportError(err error) Outcome {
	return Outcome{Kind: KindHTTPError, StatusCode: StatusTransportError, Err: err}
}

// classifyTransport maps a failed round trip to Timeout when a deadline
// expired and to a transport HTTPError otherwise.
func classifyTransport(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: KindTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Outcome{Kind: KindTimeout, Err: err}
	}
	return transportError(err)
}

func (f *Fetcher) userAgent() string {
	if f.UserAgent != "" {
		return f.UserAgent
	}
	return DefaultUserAgent
}

func (f *Fetcher) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return DefaultTimeout
}

func (f *Fetcher) maxBodyBytes() int64 {
	if f.MaxBodyBytes > 0 {
		return f.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

func (f *Fetcher) extractor() extract.Extractor {
	if f.Extractor != nil {
		return f.Extractor
	}
	return &extract.HeuristicExtractor{}
}

func (f *Fetcher) getHTTPClient() *http.Client {
	if f.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *f.HTTPClient
		base.CheckRedirect = f.checkRedirectFunc()
		return &base
	}
	return &http.Client{CheckRedirect: f.checkRedirectFunc()}
}

func (f *Fetcher) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := f.RedirectMaxHops
	if max <= 0 {
		max = defaultRedirectHops
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		// Only allow http/https during redirects
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.MaxConcurrent <= 0 {
		return nil
	}
	f.semOnce.Do(func() {
		f.sem = semaphore.NewWeighted(int64(f.MaxConcurrent))
	})
	return f.sem.Acquire(ctx, 1)
}

func (f *Fetcher) release() {
	if f.MaxConcurrent <= 0 || f.sem == nil {
		return
	}
	f.sem.Release(1)
}
