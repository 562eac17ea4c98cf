// Package httpx performs the upstream HTTP retrieval for the flows pipeline.
// The upstream is a slow-changing static page behind anti-bot filtering, so
// the fetcher sends a realistic browser User-Agent, bounds every request with
// a timeout, and does no retries or backoff within a single URL; error
// isolation across URL variants is the caller's job.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// BrowserUserAgent is what the upstream expects to see; the default
// Go-http-client UA is blocked outright.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const defaultTimeout = 20 * time.Second

// FetchError reports a failed retrieval with the HTTP status when one was
// received.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch error (status %d)", e.Status)
	}
	return fmt.Sprintf("fetch error (status %d): %v", e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves raw documents with per-host rate limiting.
type Fetcher struct {
	userAgent string
	timeout   time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(userAgent string) *Fetcher {
	if userAgent == "" {
		userAgent = BrowserUserAgent
	}
	return &Fetcher{
		userAgent: userAgent,
		timeout:   defaultTimeout,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// SetTimeout overrides the per-request timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// FetchBytes issues a single GET and returns the body and status code. A
// non-2xx status or an empty body is an error; the caller decides whether to
// fall through to another variant.
func (f *Fetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, int, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, 0, err
	}
	if err := f.limiterFor(hostOf(target)).Wait(ctx); err != nil {
		return nil, 0, err
	}

	var body []byte
	status, err := f.fetchOnce(ctx, target, func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	if err != nil {
		return nil, status, &FetchError{Status: status, Err: err}
	}
	if len(body) == 0 {
		return nil, status, &FetchError{Status: status, Err: errors.New("empty response body")}
	}
	return body, status, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string, onResponse func(*colly.Response)) (int, error) {
	c := f.newCollector()

	status := 0
	var reqErr error
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		onResponse(r)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	collyCtx := colly.NewContext()
	collyCtx.Put("ctx", ctx)

	if err := c.Request(http.MethodGet, target, nil, collyCtx, nil); err != nil {
		return status, err
	}
	if reqErr != nil {
		return status, reqErr
	}
	if status >= 300 {
		return status, fmt.Errorf("status %d", status)
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, nil
}

func (f *Fetcher) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.UserAgent(f.userAgent))
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		ctx := context.Background()
		if v := r.Ctx.GetAny("ctx"); v != nil {
			if reqCtx, ok := v.(context.Context); ok {
				ctx = reqCtx
			}
		}
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	return c
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(time.Second), 2) // 1 req/s, burst 2
	f.limiters[host] = l
	return l
}

func normalizeURL(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		// A bare host parses as a path; reparse with the scheme attached.
		u, err = url.Parse("https://" + rawURL)
		if err != nil {
			return "", err
		}
	}
	return u.String(), nil
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "default"
	}
	return strings.ToLower(u.Hostname())
}
