package walker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
	"github.com/regscan/crawler/internal/metrics"
)

// IndexConfig controls the script-rendered index walker.
type IndexConfig struct {
	// URL is the index page. Its rows only exist after the page's scripts run,
	// so it is rendered in headless Chrome rather than fetched directly.
	URL           string
	RowSelector   string
	UserAgent     string
	RenderTimeout time.Duration
}

// Renderer turns a URL into the DOM HTML after scripts have run.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
	Close()
}

// IndexWalker renders the index once and yields its rows one per page, so
// each row commits its own cursor and interruption resumes at row granularity.
type IndexWalker struct {
	cfg      IndexConfig
	renderer Renderer
	retry    crawl.RetryPolicy
	logger   *zap.Logger
}

// NewIndexWalker constructs an index walker. A nil renderer defaults to
// headless Chrome; a nil retry policy to the default exponential policy.
func NewIndexWalker(cfg IndexConfig, renderer Renderer, retry crawl.RetryPolicy, logger *zap.Logger) (*IndexWalker, error) {
	if cfg.URL == "" {
		return nil, crawl.E(crawl.KindConfig, "walker.index", fmt.Errorf("index URL is required"))
	}
	if cfg.RowSelector == "" {
		cfg.RowSelector = "table tr"
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 60 * time.Second
	}
	if retry == nil {
		retry = crawl.NewExponentialRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = newChromeRenderer(cfg.UserAgent, cfg.RenderTimeout)
	}
	return &IndexWalker{cfg: cfg, renderer: renderer, retry: retry, logger: logger}, nil
}

// Close releases the renderer.
func (w *IndexWalker) Close() {
	if w.renderer != nil {
		w.renderer.Close()
	}
}

// PagesFrom returns an iterator over index rows starting at the given cursor.
func (w *IndexWalker) PagesFrom(from crawl.Cursor) crawl.PageIter {
	return &indexIter{walker: w, next: from}
}

type indexIter struct {
	walker *IndexWalker
	next   crawl.Cursor
	rows   []crawl.Unit
	loaded bool
}

func (it *indexIter) Next(ctx context.Context) (crawl.Page, error) {
	if !it.loaded {
		rows, err := it.walker.loadRows(ctx)
		if err != nil {
			return crawl.Page{Cursor: it.next}, err
		}
		it.rows = rows
		it.loaded = true
	}

	cur := it.next
	if int(cur) >= len(it.rows) {
		return crawl.Page{}, crawl.ErrEndOfListing
	}
	it.next++

	unit := it.rows[cur]
	unit.PageCursor = cur
	return crawl.Page{Cursor: cur, Units: []crawl.Unit{unit}}, nil
}

func (w *IndexWalker) loadRows(ctx context.Context) ([]crawl.Unit, error) {
	html, err := w.render(ctx)
	if err != nil {
		return nil, crawl.E(crawl.KindTransient, "walker.index", fmt.Errorf("render index: %w", err))
	}

	rows, err := w.parseRows(html)
	if err != nil {
		return nil, crawl.E(crawl.KindExtraction, "walker.index", err)
	}
	w.logger.Info("loaded index rows", zap.String("url", w.cfg.URL), zap.Int("rows", len(rows)))
	return rows, nil
}

// render runs the headless browser, retrying transient render failures the
// same bounded way a listing-page fetch would.
func (w *IndexWalker) render(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		start := time.Now()
		html, err := w.renderer.Render(ctx, w.cfg.URL)
		if err == nil {
			metrics.ObserveFetch("index", time.Since(start))
			return html, nil
		}
		lastErr = err

		if !w.retry.ShouldRetry(err, attempt) {
			break
		}
		metrics.ObserveFetchRetry()
		delay := w.retry.Backoff(attempt)
		w.logger.Warn("index render failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (w *IndexWalker) parseRows(html string) ([]crawl.Unit, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse index html: %w", err)
	}
	base, err := url.Parse(w.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse index url: %w", err)
	}

	var units []crawl.Unit
	seen := make(map[string]bool)
	doc.Find(w.cfg.RowSelector).Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a[href]").First()
		href, ok := link.Attr("href")
		if !ok || !isOrderLink(href) {
			return
		}
		ref, err := base.Parse(href)
		if err != nil {
			return
		}
		abs := ref.String()
		if seen[abs] {
			return
		}
		seen[abs] = true

		title := strings.TrimSpace(link.Text())
		date := ExtractDate(strings.TrimSpace(row.Text()))
		units = append(units, crawl.Unit{Ref: abs, Title: title, Date: date})
	})
	return units, nil
}

// chromeRenderer renders pages in headless Chrome, one tab per render.
type chromeRenderer struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	userAgent     string
	timeout       time.Duration
}

func newChromeRenderer(userAgent string, timeout time.Duration) *chromeRenderer {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	return &chromeRenderer{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		userAgent:     userAgent,
		timeout:       timeout,
	}
}

func (r *chromeRenderer) Render(ctx context.Context, rawURL string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTask()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancelTask()
		case <-done:
		}
	}()
	defer close(done)

	var docStatus int64
	var statusOnce sync.Once
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		statusOnce.Do(func() { docStatus = resp.Response.Status })
	})

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	if docStatus >= 400 {
		return "", fmt.Errorf("render %s: document status %d", rawURL, docStatus)
	}
	return html, nil
}

func (r *chromeRenderer) Close() {
	r.browserCancel()
	r.allocCancel()
}
