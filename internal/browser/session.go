package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
	"github.com/xkilldash9x/specter-mcp/internal/config"
)

// Session is one browser tab plus its network capture buffer. Tool calls are
// serialized: the session runs one operation at a time.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    *config.Config

	ctx    context.Context
	cancel context.CancelFunc

	harvester *Harvester

	mu        sync.Mutex
	pageURL   string
	pageTitle string
	navigated bool
	closed    bool
}

var _ schemas.BrowserSession = (*Session)(nil)

func newSession(tabCtx context.Context, cancel context.CancelFunc, logger *zap.Logger, cfg *config.Config) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		logger: logger.Named("session").With(zap.String("session_id", id)),
		cfg:    cfg,
		ctx:    tabCtx,
		cancel: cancel,
		harvester: NewHarvester(tabCtx, logger,
			cfg.Network.CaptureResponseBodies,
			cfg.Network.MaxBodySize,
			cfg.Network.MaxCapturedRequests,
		),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Navigate drives the tab to the given URL, waits for late traffic, and
// reports the page title plus the number of captured requests. The capture
// buffer is reset at the start of every navigation.
func (s *Session) Navigate(ctx context.Context, rawURL string, wait float64) (*schemas.NavigateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionNotReady
	}

	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	waitTime := s.clampWait(wait)

	s.harvester.Reset()

	s.logger.Info("Navigating",
		zap.String("url", target),
		zap.Duration("wait_time", waitTime),
	)

	navCtx, cancel := context.WithTimeout(s.ctx, s.cfg.Network.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(target)); err != nil {
		return nil, s.classifyNavigationError(navCtx, ctx, target, err)
	}

	// Give dynamic content time to issue its own requests before reporting.
	select {
	case <-time.After(waitTime):
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, ErrSessionNotReady
	}

	// A wedged tab must not hold the session hostage, so the read gets its
	// own deadline.
	readCtx, readCancel := context.WithTimeout(s.ctx, s.cfg.Network.NavigationTimeout)
	defer readCancel()

	var title, location string
	if err := chromedp.Run(readCtx,
		chromedp.Title(&title),
		chromedp.Location(&location),
	); err != nil {
		s.logger.Warn("Failed to read page title after navigation.", zap.Error(err))
		location = target
	}
	if title == "" {
		title = s.titleFallback(readCtx)
	}

	s.pageURL = location
	s.pageTitle = title
	s.navigated = true

	captured := s.harvester.Count()
	s.logger.Info("Navigation complete",
		zap.String("title", title),
		zap.Int("network_requests_captured", captured),
	)

	return &schemas.NavigateResult{
		Success:                 true,
		URL:                     location,
		Title:                   title,
		NetworkRequestsCaptured: captured,
		Message:                 fmt.Sprintf("Successfully navigated to %s. Captured %d network requests.", target, captured),
	}, nil
}

// PageHTML returns the HTML of the current page, rendered in a throwaway tab
// with script execution disabled so the markup is not mutated by page
// JavaScript while we read it.
func (s *Session) PageHTML(ctx context.Context) (*schemas.PageHTMLResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.navigated {
		return nil, ErrSessionNotReady
	}

	tabCtx, cancel := chromedp.NewContext(s.ctx)
	defer cancel()

	runCtx, runCancel := context.WithTimeout(tabCtx, s.cfg.Network.NavigationTimeout)
	defer runCancel()

	var html string
	err := chromedp.Run(runCtx,
		emulation.SetScriptExecutionDisabled(true),
		chromedp.Navigate(s.pageURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, s.classifyNavigationError(runCtx, ctx, s.pageURL, err)
	}

	return &schemas.PageHTMLResult{
		Success:     true,
		URL:         s.pageURL,
		HTMLLength:  len(html),
		HTMLContent: html,
		Note:        "HTML extracted with JavaScript disabled for clean content",
	}, nil
}

// NetworkRequests returns the buffered capture, optionally narrowed to XHR or
// fetch traffic. An unknown filter falls back to returning everything.
func (s *Session) NetworkRequests(filter schemas.FilterType) *schemas.NetworkRequestsResult {
	switch filter {
	case schemas.FilterAll, schemas.FilterXHR, schemas.FilterFetch:
	default:
		filter = schemas.FilterAll
	}

	records, total := s.harvester.Filtered(filter)
	return &schemas.NetworkRequestsResult{
		Success:          true,
		TotalRequests:    total,
		FilteredRequests: len(records),
		FilterApplied:    filter,
		Requests:         records,
	}
}

// Snapshot bundles the current page state and capture buffer for archiving.
func (s *Session) Snapshot() *schemas.CaptureSnapshot {
	s.mu.Lock()
	pageURL, pageTitle := s.pageURL, s.pageTitle
	s.mu.Unlock()

	return &schemas.CaptureSnapshot{
		SessionID:  s.id,
		PageURL:    pageURL,
		PageTitle:  pageTitle,
		CapturedAt: time.Now().UTC(),
		Requests:   s.harvester.Snapshot(),
	}
}

// Close tears down the tab. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.harvester.Stop(stopCtx)

	s.cancel()
	s.logger.Info("Session closed")
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// clampWait converts the caller supplied wait (seconds) into a duration
// bounded by the configured maximum.
func (s *Session) clampWait(seconds float64) time.Duration {
	if seconds < 0 {
		return s.cfg.Network.DefaultWaitTime
	}
	wait := time.Duration(seconds * float64(time.Second))
	if max := s.cfg.Network.MaxWaitTime; wait > max {
		return max
	}
	return wait
}

// classifyNavigationError maps a chromedp failure onto the error taxonomy.
func (s *Session) classifyNavigationError(navCtx, callCtx context.Context, target string, err error) error {
	switch {
	case callCtx.Err() != nil:
		return callCtx.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %s", ErrNavigationTimeout, target, s.cfg.Network.NavigationTimeout)
	case s.ctx.Err() != nil:
		return ErrSessionNotReady
	default:
		return fmt.Errorf("%w: %s: %v", ErrNavigationFailed, target, err)
	}
}

// titleFallback pulls a title out of the page markup when the document title
// is empty, preferring the og:title meta tag.
func (s *Session) titleFallback(ctx context.Context) string {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		return og
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// normalizeURL validates the navigation target. Only web URLs with both a
// scheme and a host are accepted.
func normalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: url must not be empty", ErrInvalidInput)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a valid URL", ErrInvalidInput, rawURL)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidInput, rawURL)
	}
	return parsed.String(), nil
}
