// Package fetch downloads order documents. Listing entries point either at
// a PDF directly or at a viewer page that embeds one; the fetcher resolves
// the indirection and returns the document bytes.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
	"github.com/regscan/crawler/internal/metrics"
	"github.com/regscan/crawler/internal/ratelimit"
)

// maxBodySize caps document downloads at 64 MiB.
const maxBodySize = 64 << 20

// Config controls the content fetcher.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
}

// Fetcher downloads unit content over HTTP with retries and per-host
// politeness delays.
type Fetcher struct {
	client  *http.Client
	cfg     Config
	limiter *ratelimit.Limiter
	retry   crawl.RetryPolicy
	logger  *zap.Logger
}

// New constructs a Fetcher. A nil retry policy falls back to the default
// exponential policy; a nil limiter disables politeness delays.
func New(cfg Config, limiter *ratelimit.Limiter, retry crawl.RetryPolicy, logger *zap.Logger) *Fetcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if retry == nil {
		retry = crawl.NewExponentialRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        16,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		cfg:     cfg,
		limiter: limiter,
		retry:   retry,
		logger:  logger,
	}
}

// FetchContent returns the document bytes for a unit reference. Viewer pages
// are resolved to their embedded PDF; when a page embeds no PDF at all, the
// page bytes themselves are returned for text extraction.
func (f *Fetcher) FetchContent(ctx context.Context, ref string) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.ObserveFetch("content", time.Since(start)) }()

	if strings.HasSuffix(strings.ToLower(refPath(ref)), ".html") {
		return f.resolveViewerPage(ctx, ref)
	}
	return f.get(ctx, ref)
}

func refPath(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return parsed.Path
}

// resolveViewerPage finds the PDF behind an HTML order page. The regulator
// embeds documents through a viewer iframe whose file query parameter holds
// the real URL; older pages use direct anchors or embed tags.
func (f *Fetcher) resolveViewerPage(ctx context.Context, pageURL string) ([]byte, error) {
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, crawl.E(crawl.KindExtraction, "fetch.resolve", fmt.Errorf("parse order page: %w", err))
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, crawl.E(crawl.KindExtraction, "fetch.resolve", fmt.Errorf("parse page url: %w", err))
	}

	if pdfURL := findEmbeddedPDF(doc, base); pdfURL != "" {
		f.logger.Debug("resolved embedded document", zap.String("page", pageURL), zap.String("pdf", pdfURL))
		return f.get(ctx, pdfURL)
	}

	// No embedded PDF; the order text lives in the page itself.
	f.logger.Debug("order page embeds no pdf, using page content", zap.String("page", pageURL))
	return body, nil
}

func findEmbeddedPDF(doc *goquery.Document, base *url.URL) string {
	var found string
	doc.Find("iframe[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		if u := viewerFileParam(src); u != "" {
			found = u
			return false
		}
		if isPDF(src) {
			found = absoluteURL(base, src)
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if isPDF(href) {
			found = absoluteURL(base, href)
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	doc.Find("embed[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		if isPDF(src) {
			found = absoluteURL(base, src)
			return false
		}
		return true
	})
	return found
}

// viewerFileParam extracts the target URL from a viewer src of the form
// /web/?file=https://host/path/doc.pdf.
func viewerFileParam(src string) string {
	if !strings.Contains(src, "web/?file=") {
		return ""
	}
	parsed, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("file")
}

func isPDF(ref string) bool {
	return strings.HasSuffix(strings.ToLower(refPath(ref)), ".pdf")
}

func absoluteURL(base *url.URL, ref string) string {
	parsed, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return parsed.String()
}

// get performs one HTTP download with politeness delay and bounded retries.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, rawURL); err != nil {
				return nil, crawl.E(crawl.KindTransient, "fetch.get", err)
			}
		}

		body, err := f.getOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !f.retry.ShouldRetry(err, attempt) {
			break
		}
		metrics.ObserveFetchRetry()
		delay := f.retry.Backoff(attempt)
		f.logger.Warn("fetch failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, crawl.E(crawl.KindTransient, "fetch.get", ctx.Err())
		}
	}
	return nil, crawl.E(crawl.KindTransient, "fetch.get", lastErr)
}

func (f *Fetcher) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
