// Package capture attaches JPEG snapshots to extracted bounding boxes.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

const (
	// DefaultConcurrency is the number of capture operations allowed in flight.
	DefaultConcurrency = 5
	// DefaultPadding is added to every side of a desktop clip.
	DefaultPadding = 20.0
)

// Clip is a capture rectangle in CSS pixels, relative to the document.
type Clip struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Surface is the rendering target screenshots are taken from.
type Surface interface {
	// CaptureClip returns a JPEG of the given document region.
	CaptureClip(ctx context.Context, clip Clip) ([]byte, error)
	// CaptureViewport returns a JPEG of the current viewport.
	CaptureViewport(ctx context.Context) ([]byte, error)
	// ScrollIntoView centers the box's element in the viewport and returns its
	// current document rectangle.
	ScrollIntoView(ctx context.Context, box schemas.BoundingBox) (Clip, error)
}

// Capturer takes snapshots with bounded concurrency.
type Capturer struct {
	concurrency int64
	padding     float64
	logger      *zap.Logger
}

// New creates a Capturer. Non-positive arguments fall back to the defaults.
func New(concurrency int, padding float64, logger *zap.Logger) *Capturer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if padding < 0 {
		padding = DefaultPadding
	}
	return &Capturer{
		concurrency: int64(concurrency),
		padding:     padding,
		logger:      logger.Named("capturer"),
	}
}

// CaptureGraph captures sources then targets of g on one limiter.
func (c *Capturer) CaptureGraph(ctx context.Context, s Surface, g schemas.Graph, mobile bool) schemas.Graph {
	boxes := make([]schemas.BoundingBox, 0, len(g.Sources)+len(g.Targets))
	boxes = append(boxes, g.Sources...)
	boxes = append(boxes, g.Targets...)

	out := c.Capture(ctx, s, boxes, mobile)
	return schemas.Graph{
		URL:     g.URL,
		Sources: out[:len(g.Sources):len(g.Sources)],
		Targets: out[len(g.Sources):],
	}
}

// Capture returns a copy of boxes with snapshots attached. Boxes without area
// are returned unchanged. A failed capture is logged and leaves that box without
// a snapshot. Work is admitted in submission order.
func (c *Capturer) Capture(ctx context.Context, s Surface, boxes []schemas.BoundingBox, mobile bool) []schemas.BoundingBox {
	out := make([]schemas.BoundingBox, len(boxes))
	copy(out, boxes)

	sem := semaphore.NewWeighted(c.concurrency)
	// Scrolling moves the shared viewport, so a mobile pair must not interleave
	// with another.
	var viewport sync.Mutex
	var g errgroup.Group

	for i := range out {
		if !out[i].HasArea() {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			c.logger.Warn("Capture aborted", zap.Int("remaining", len(out)-i), zap.Error(err))
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			var err error
			if mobile {
				viewport.Lock()
				out[i].MobileSnapshots, err = c.captureMobile(ctx, s, out[i])
				viewport.Unlock()
			} else {
				out[i].Snapshot, err = c.captureDesktop(ctx, s, out[i])
			}
			if err != nil {
				c.logger.Warn("Failed to capture snapshot",
					zap.String("selector", out[i].Selector),
					zap.String("url", out[i].URL),
					zap.Bool("mobile", mobile),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Capturer) captureDesktop(ctx context.Context, s Surface, box schemas.BoundingBox) (string, error) {
	img, err := s.CaptureClip(ctx, ClipFor(box, c.padding))
	if err != nil {
		return "", fmt.Errorf("clip capture failed: %w", err)
	}
	return DataURI(img), nil
}

func (c *Capturer) captureMobile(ctx context.Context, s Surface, box schemas.BoundingBox) (*schemas.MobileSnapshots, error) {
	clip, err := s.ScrollIntoView(ctx, box)
	if err != nil {
		return nil, fmt.Errorf("scroll into view failed: %w", err)
	}
	element, err := s.CaptureClip(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("element capture failed: %w", err)
	}
	viewport, err := s.CaptureViewport(ctx)
	if err != nil {
		return nil, fmt.Errorf("viewport capture failed: %w", err)
	}
	return &schemas.MobileSnapshots{
		ElementSnapshot:  DataURI(element),
		ViewportSnapshot: DataURI(viewport),
	}, nil
}

// ClipFor expands the box by pad on every side. The origin is clamped to zero
// while the right and bottom edges stay where padding put them.
func ClipFor(box schemas.BoundingBox, pad float64) Clip {
	x := math.Max(0, box.X-pad)
	y := math.Max(0, box.Y-pad)
	return Clip{
		X:      x,
		Y:      y,
		Width:  box.X + box.Width + pad - x,
		Height: box.Y + box.Height + pad - y,
	}
}

// DataURI encodes a JPEG as a data URI.
func DataURI(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}
