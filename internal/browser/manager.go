// Package browser owns the shared headless Chrome process and opens one tab per row.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/config"
)

const launchProbeTimeout = 30 * time.Second

// Manager handles the lifecycle of the browser process. It is acquired once at
// startup and every page is derived from it.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// browserCtx holds the single browser every tab is opened in.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser and verifies it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...",
		zap.Bool("headless", m.cfg.Browser.Headless),
		zap.String("executable", m.cfg.Browser.ExecutablePath),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(m.cfg.Browser)...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	// The first Run allocates the process, so it must not carry a timeout.
	m.browserCtx, m.browserCancel = chromedp.NewContext(allocCtx)
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start: %w", err)
	}

	probeCtx, cancelProbe := context.WithTimeout(m.browserCtx, launchProbeTimeout)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// AllocatorFlags returns the command line flags for the browser process.
func AllocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                  cfg.Headless,
		"enable-automation":         false,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
		"disable-extensions":        true,
		"disable-gpu":               cfg.Headless,
		"hide-scrollbars":           true,
		"mute-audio":                true,
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}

	// Required inside containers.
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

// AllocatorOptions extends chromedp's defaults with AllocatorFlags, the
// executable path and the default user agent.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range AllocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// OpenPage creates a tab, applies mobile emulation when userAgent is
// mobile-class, and navigates to url waiting for DOMContentLoaded. Any failure
// closes the tab and is reported as a *NavigationError.
func (m *Manager) OpenPage(ctx context.Context, url, userAgent string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &NavigationError{URL: url, Err: err}
	}

	mobile := schemas.IsMobileUserAgent(userAgent)
	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	m.wg.Add(1)
	p := newPage(tabCtx, tabCancel, pageOptions{
		url:         url,
		mobile:      mobile,
		jpegQuality: m.cfg.Pipeline.JPEGQuality,
		onClose:     m.wg.Done,
	}, m.logger)

	p.listenConsole()
	// Binds the new target to tabCtx; later runs use derived contexts.
	if err := chromedp.Run(tabCtx); err != nil {
		_ = p.Close()
		return nil, &NavigationError{URL: url, Err: fmt.Errorf("failed to open tab: %w", err)}
	}

	setup := chromedp.Tasks{cdpruntime.Enable()}
	if mobile {
		setup = append(setup, emulateMobile(m.cfg.Pipeline.MobileViewport, userAgent, p.logger))
	}
	if err := p.run(ctx, setup); err != nil {
		_ = p.Close()
		return nil, &NavigationError{URL: url, Err: err}
	}

	navCtx, cancelNav := context.WithTimeout(ctx, m.cfg.Network.NavigationTimeout)
	defer cancelNav()
	start := time.Now()
	if err := p.run(navCtx, navigateDOMContentLoaded(url)); err != nil {
		_ = p.Close()
		if navCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("no DOMContentLoaded within %s: %w", m.cfg.Network.NavigationTimeout, context.DeadlineExceeded)
		}
		return nil, &NavigationError{URL: url, Err: err}
	}

	m.logger.Debug("Page opened",
		zap.String("url", url),
		zap.Bool("mobile", mobile),
		zap.Duration("elapsed", time.Since(start)),
	)
	return p, nil
}

// Shutdown waits for open pages to close, up to the caller's deadline, and then
// terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down browser process...")
		if err := chromedp.Cancel(m.browserCtx); err != nil {
			m.logger.Debug("Browser did not close cleanly", zap.Error(err))
		}
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
