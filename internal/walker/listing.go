// Package walker discovers work units from the regulator's order listings.
// The listing walker pages through the numbered listing; the index walker
// renders a script-driven index and yields one row at a time.
package walker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
	"github.com/regscan/crawler/internal/metrics"
)

var (
	numericDate   = regexp.MustCompile(`(\d{1,2})[-/.](\d{1,2})[-/.](\d{2,4})`)
	monthNameDate = regexp.MustCompile(`(?i)(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+(\d{1,2})[,\s]+(\d{4})`)
)

// ListingConfig controls the listing walker.
type ListingConfig struct {
	// BaseURL is the listing endpoint; the page number is appended as a
	// pagenum query parameter.
	BaseURL        string
	UserAgent      string
	RequestTimeout time.Duration
	// MaxEmptyPages is how many consecutive unit-less pages mark the
	// listing as exhausted.
	MaxEmptyPages int
}

// ListingWalker walks numbered listing pages and extracts order links.
type ListingWalker struct {
	cfg       ListingConfig
	collector *colly.Collector
	retry     crawl.RetryPolicy
	logger    *zap.Logger
}

// NewListingWalker constructs a walker backed by a configured Colly collector.
// A nil retry policy falls back to the default exponential policy.
func NewListingWalker(cfg ListingConfig, retry crawl.RetryPolicy, logger *zap.Logger) (*ListingWalker, error) {
	if cfg.BaseURL == "" {
		return nil, crawl.E(crawl.KindConfig, "walker.listing", fmt.Errorf("listing base URL is required"))
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxEmptyPages <= 0 {
		cfg.MaxEmptyPages = 3
	}
	if retry == nil {
		retry = crawl.NewExponentialRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []colly.CollectorOption{}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &ListingWalker{cfg: cfg, collector: base, retry: retry, logger: logger}, nil
}

// PagesFrom returns an iterator over listing pages starting at the given cursor.
func (w *ListingWalker) PagesFrom(from crawl.Cursor) crawl.PageIter {
	return &listingIter{walker: w, next: from}
}

type listingIter struct {
	walker      *ListingWalker
	next        crawl.Cursor
	emptyStreak int
}

// Next fetches the next listing page. Unit-less pages are returned so their
// cursor still commits; a run of them marks the listing exhausted.
func (it *listingIter) Next(ctx context.Context) (crawl.Page, error) {
	cur := it.next
	it.next++

	units, err := it.walker.fetchPage(ctx, cur)
	if err != nil {
		return crawl.Page{Cursor: cur}, crawl.E(crawl.KindTransient, "walker.listing",
			fmt.Errorf("page %d: %w", cur, err))
	}

	if len(units) == 0 {
		it.emptyStreak++
		if it.emptyStreak >= it.walker.cfg.MaxEmptyPages {
			it.walker.logger.Info("listing exhausted",
				zap.Int("cursor", int(cur)),
				zap.Int("empty_streak", it.emptyStreak),
			)
			return crawl.Page{}, crawl.ErrEndOfListing
		}
	} else {
		it.emptyStreak = 0
	}

	return crawl.Page{Cursor: cur, Units: units}, nil
}

// fetchPage downloads one listing page, retrying transient failures before
// the error escalates into a run abort.
func (w *ListingWalker) fetchPage(ctx context.Context, cursor crawl.Cursor) ([]crawl.Unit, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		units, err := w.fetchPageOnce(ctx, cursor)
		if err == nil {
			return units, nil
		}
		lastErr = err

		if !w.retry.ShouldRetry(err, attempt) {
			break
		}
		metrics.ObserveFetchRetry()
		delay := w.retry.Backoff(attempt)
		w.logger.Warn("listing page fetch failed, retrying",
			zap.Int("cursor", int(cursor)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (w *ListingWalker) fetchPageOnce(ctx context.Context, cursor crawl.Cursor) ([]crawl.Unit, error) {
	pageURL := fmt.Sprintf("%s?pagenum=%d", w.cfg.BaseURL, cursor)
	start := time.Now()

	collector := w.collector.Clone()
	var (
		mu       sync.Mutex
		units    []crawl.Unit
		seen     = make(map[string]bool)
		fetchErr error
	)

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if !isOrderLink(href) {
			return
		}
		abs := e.Request.AbsoluteURL(href)
		if abs == "" {
			return
		}
		title := strings.TrimSpace(e.Text)

		mu.Lock()
		defer mu.Unlock()
		if seen[abs] {
			return
		}
		seen[abs] = true
		units = append(units, crawl.Unit{
			Ref:        abs,
			Title:      title,
			Date:       ExtractDate(title),
			PageCursor: cursor,
		})
	})

	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		mu.Lock()
		fetchErr = err
		mu.Unlock()
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, err
	}
	collector.Wait()
	metrics.ObserveFetch("listing", time.Since(start))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	w.logger.Debug("walked listing page",
		zap.Int("cursor", int(cursor)),
		zap.Int("units", len(units)),
	)
	return units, nil
}

// isOrderLink reports whether an anchor points at an order document.
func isOrderLink(href string) bool {
	h := strings.ToLower(href)
	if h == "" || strings.HasPrefix(h, "javascript:") || strings.HasPrefix(h, "#") {
		return false
	}
	return strings.Contains(h, "pdf") || strings.Contains(h, "order")
}

// ExtractDate pulls a date string out of free text, preferring numeric
// dd/mm/yyyy forms over month names. Returns "Unknown" when nothing matches.
func ExtractDate(text string) string {
	if m := numericDate.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])
	}
	if m := monthNameDate.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s %s, %s", m[1], m[2], m[3])
	}
	return "Unknown"
}
