package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/capture"
	"github.com/xkilldash9x/bbox-cli/internal/extract"
)

const consoleBuffer = 256

// NavigationError reports a page that could not be opened.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

type pageOptions struct {
	url         string
	mobile      bool
	jpegQuality int64
	onClose     func()
}

// Page is one browser tab. It implements extract.DOMQueryExecutor and
// capture.Surface, and must be closed by the caller.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   pageOptions
	logger *zap.Logger

	consoleMu     sync.Mutex
	console       chan schemas.ConsoleRecord
	consoleClosed bool
	dropped       int

	closeOnce sync.Once
	closeErr  error
}

var (
	_ extract.DOMQueryExecutor = (*Page)(nil)
	_ capture.Surface          = (*Page)(nil)
)

func newPage(ctx context.Context, cancel context.CancelFunc, opts pageOptions, logger *zap.Logger) *Page {
	return &Page{
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		logger:  logger.Named("page").With(zap.String("url", opts.url)),
		console: make(chan schemas.ConsoleRecord, consoleBuffer),
	}
}

// URL returns the address the page was opened with.
func (p *Page) URL() string { return p.opts.url }

// IsMobile reports whether mobile emulation was applied.
func (p *Page) IsMobile() bool { return p.opts.mobile }

// Console yields the page's console and exception records. The channel is
// closed when the page closes. Records are dropped while the buffer is full.
func (p *Page) Console() <-chan schemas.ConsoleRecord { return p.console }

func (p *Page) emit(rec schemas.ConsoleRecord) {
	p.consoleMu.Lock()
	defer p.consoleMu.Unlock()
	if p.consoleClosed {
		return
	}
	select {
	case p.console <- rec:
	default:
		p.dropped++
	}
}

// Close closes the tab and ends the console sequence. It is safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.consoleMu.Lock()
		p.consoleClosed = true
		close(p.console)
		dropped := p.dropped
		p.consoleMu.Unlock()

		if dropped > 0 {
			p.logger.Debug("Console records dropped", zap.Int("count", dropped))
		}

		if err := chromedp.Cancel(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.closeErr = fmt.Errorf("failed to close tab: %w", err)
		}
		p.cancel()
		if p.opts.onClose != nil {
			p.opts.onClose()
		}
	})
	return p.closeErr
}

// run executes actions on the tab, aborting when either the tab or ctx ends.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// QueryBoxes implements extract.DOMQueryExecutor in a single evaluation.
func (p *Page) QueryBoxes(ctx context.Context, q extract.Query) (extract.RawResult, error) {
	expr, err := extract.Expression(q)
	if err != nil {
		return extract.RawResult{}, err
	}
	var res extract.RawResult
	if err := p.run(ctx, chromedp.Evaluate(expr, &res)); err != nil {
		return extract.RawResult{}, fmt.Errorf("selector evaluation failed: %w", err)
	}
	return res, nil
}

// CaptureClip implements capture.Surface.
func (p *Page) CaptureClip(ctx context.Context, clip capture.Clip) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(p.opts.jpegQuality).
			WithCaptureBeyondViewport(true).
			WithClip(&page.Viewport{
				X:      clip.X,
				Y:      clip.Y,
				Width:  clip.Width,
				Height: clip.Height,
				Scale:  1,
			}).
			Do(ctx)
		return err
	}))
	return buf, err
}

// CaptureViewport implements capture.Surface.
func (p *Page) CaptureViewport(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(p.opts.jpegQuality).
			Do(ctx)
		return err
	}))
	return buf, err
}

// scrollScript centers the element the derived selector names, falling back to
// scrolling the recorded box to the middle of the viewport. It returns the
// element's document rectangle.
const scrollScript = `(function (sel, box) {
  var el = null;
  if (sel && sel !== %q) {
    try { el = document.querySelector(sel); } catch (e) { el = null; }
  }
  if (el) {
    el.scrollIntoView({ behavior: 'instant', block: 'center' });
    var r = el.getBoundingClientRect();
    return { x: r.x + window.scrollX, y: r.y + window.scrollY, width: r.width, height: r.height };
  }
  window.scrollTo({ left: 0, top: Math.max(0, box.y + box.height / 2 - window.innerHeight / 2), behavior: 'instant' });
  return box;
})(%s, %s)`

// ScrollIntoView implements capture.Surface.
func (p *Page) ScrollIntoView(ctx context.Context, box schemas.BoundingBox) (capture.Clip, error) {
	sel, err := json.Marshal(box.Selector)
	if err != nil {
		return capture.Clip{}, err
	}
	rect, err := json.Marshal(map[string]float64{"x": box.X, "y": box.Y, "width": box.Width, "height": box.Height})
	if err != nil {
		return capture.Clip{}, err
	}

	var res struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	expr := fmt.Sprintf(scrollScript, schemas.NoSelector, sel, rect)
	if err := p.run(ctx, chromedp.Evaluate(expr, &res)); err != nil {
		return capture.Clip{}, fmt.Errorf("scroll failed: %w", err)
	}
	return capture.Clip{X: res.X, Y: res.Y, Width: res.Width, Height: res.Height}, nil
}

// navigateDOMContentLoaded navigates and returns once DOMContentLoaded fires,
// without waiting for the load event.
func navigateDOMContentLoaded(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		loaded := make(chan struct{})
		var once sync.Once
		chromedp.ListenTarget(listenCtx, func(ev interface{}) {
			if _, ok := ev.(*page.EventDomContentEventFired); ok {
				once.Do(func() { close(loaded) })
			}
		})

		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return fmt.Errorf("page load error %s", res.ErrorText)
		}

		select {
		case <-loaded:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
