// Package browser drives a headless Chrome instance over the DevTools
// protocol and buffers the network traffic each navigation produces.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
	"github.com/xkilldash9x/specter-mcp/internal/browser/stealth"
	"github.com/xkilldash9x/specter-mcp/internal/config"
)

// Engine owns the browser process and hands out the single active session.
// The browser itself is started lazily on the first session request, so a
// server that is never asked to navigate never pays the startup cost.
type Engine struct {
	logger *zap.Logger
	cfg    *config.Config

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	mu     sync.Mutex
	active *Session
}

var _ schemas.BrowserEngine = (*Engine)(nil)

// NewEngine prepares the browser allocator. No browser process is launched
// until the first call to Session.
func NewEngine(ctx context.Context, logger *zap.Logger, cfg *config.Config) *Engine {
	e := &Engine{
		logger: logger.Named("browser_engine"),
		cfg:    cfg,
	}

	opts := e.generateAllocatorOptions()
	e.allocatorCtx, e.allocatorCancel = chromedp.NewExecAllocator(ctx, opts...)

	e.logger.Info("Browser engine initialized",
		zap.Bool("headless", cfg.Browser.Headless),
		zap.Bool("proxy_enabled", cfg.Browser.Proxy.Enabled),
		zap.String("proxy_address", cfg.Browser.Proxy.Address),
	)
	return e
}

// generateAllocatorOptions configures the flags for the browser executable.
func (e *Engine) generateAllocatorOptions() []chromedp.ExecAllocatorOption {
	// Start with default options provided by ChromeDP.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	browserCfg := e.cfg.Browser

	if browserCfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if browserCfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(browserCfg.ExecPath))
	}

	// Standard flags for stability and automation detection avoidance.
	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-extensions", true),

		// GPU often causes issues in headless/containerized environments.
		chromedp.Flag("disable-gpu", browserCfg.Headless),

		chromedp.Flag("ignore-certificate-errors", browserCfg.IgnoreTLSErrors),
	)

	// Optional upstream proxy. Its dynamically generated certificates will
	// not be trusted by the browser, so cert errors must be ignored.
	proxyCfg := browserCfg.Proxy
	if proxyCfg.Enabled && proxyCfg.Address != "" {
		proxyURL := "http://" + proxyCfg.Address
		if _, err := url.Parse(proxyURL); err == nil {
			opts = append(opts,
				chromedp.ProxyServer(proxyURL),
				chromedp.Flag("ignore-certificate-errors", true),
			)
		} else {
			e.logger.Error("Invalid proxy address in config, cannot set proxy",
				zap.String("address", proxyCfg.Address))
		}
	}

	return opts
}

// Session returns the active browser session, starting the browser and
// creating the session on first use.
func (e *Engine) Session(ctx context.Context) (schemas.BrowserSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil && !e.active.isClosed() {
		return e.active, nil
	}

	session, err := e.newSession(ctx)
	if err != nil {
		return nil, err
	}
	e.active = session
	return session, nil
}

// ActiveSession returns the current session without creating one.
func (e *Engine) ActiveSession() (schemas.BrowserSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.isClosed() {
		return nil, false
	}
	return e.active, true
}

func (e *Engine) newSession(ctx context.Context) (*Session, error) {
	adapter := NewZapAdapter(e.logger)
	tabCtx, tabCancel := chromedp.NewContext(e.allocatorCtx,
		chromedp.WithLogf(adapter.Logf),
		chromedp.WithErrorf(adapter.Errorf),
	)

	// Run a no-op task so the browser process starts now and startup errors
	// surface here instead of inside the first navigation. The first Run on a
	// fresh context must not use a timeout-derived context, or the browser
	// lifetime gets tied to the timeout.
	if err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(context.Context) error { return nil })); err != nil {
		tabCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	if err := stealth.ApplyEvasions(tabCtx, schemas.DefaultPersona, e.logger); err != nil {
		e.logger.Warn("Failed to apply stealth evasions; continuing without them.", zap.Error(err))
	}

	session := newSession(tabCtx, tabCancel, e.logger, e.cfg)
	if err := session.harvester.Start(); err != nil {
		session.Close(ctx)
		return nil, err
	}

	e.logger.Info("Browser session created", zap.String("session_id", session.ID()))
	return session, nil
}

// Shutdown closes the active session and tears down the browser process.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	active := e.active
	e.active = nil
	e.mu.Unlock()

	if active != nil {
		if err := active.Close(ctx); err != nil {
			e.logger.Warn("Error closing session during shutdown.", zap.Error(err))
		}
	}
	if e.allocatorCancel != nil {
		e.allocatorCancel()
	}
	e.logger.Info("Browser engine shut down")
	return nil
}
