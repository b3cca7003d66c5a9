package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSurface records calls and can be told to fail for specific boxes.
type fakeSurface struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	maxSeen  int
	failOn   map[float64]bool // keyed by clip X
	gate     chan struct{}
	gateAt   int
	events   []string
}

func (f *fakeSurface) enter(label string) {
	f.mu.Lock()
	f.calls = append(f.calls, label)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	if f.gate != nil && f.inFlight == f.gateAt {
		close(f.gate)
		f.gate = nil
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-time.After(time.Second):
		}
	}
}

func (f *fakeSurface) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeSurface) record(ev string) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *fakeSurface) CaptureClip(ctx context.Context, clip Clip) ([]byte, error) {
	f.enter("clip")
	defer f.leave()
	f.record("clip")
	if f.failOn[clip.X] {
		return nil, errors.New("Unable to capture screenshot")
	}
	return []byte("jpeg"), nil
}

func (f *fakeSurface) CaptureViewport(ctx context.Context) ([]byte, error) {
	f.record("viewport")
	return []byte("viewport"), nil
}

func (f *fakeSurface) ScrollIntoView(ctx context.Context, box schemas.BoundingBox) (Clip, error) {
	f.record("scroll:" + box.Selector)
	return Clip{X: box.X, Y: 0, Width: box.Width, Height: box.Height}, nil
}

func box(sel string, x, w, h float64) schemas.BoundingBox {
	return schemas.BoundingBox{
		Selector: sel,
		X:        x,
		Y:        100,
		Width:    w,
		Height:   h,
		Left:     x,
		Top:      100,
		Right:    x + w,
		Bottom:   100 + h,
	}
}

func TestCaptureDesktop(t *testing.T) {
	boxes := []schemas.BoundingBox{
		box("#a", 100, 50, 20),
		box("#b", 200, 50, 20),
		box("#c", 300, 50, 20),
	}
	// ClipFor shifts the origin by the padding.
	fs := &fakeSurface{failOn: map[float64]bool{180: true}}

	core, logs := observer.New(zapcore.WarnLevel)
	c := New(5, 20, zap.New(core))

	out := c.Capture(context.Background(), fs, boxes, false)
	require.Len(t, out, 3)

	assert.Equal(t, DataURI([]byte("jpeg")), out[0].Snapshot)
	assert.Empty(t, out[1].Snapshot, "the failed box is returned without a snapshot")
	assert.Equal(t, DataURI([]byte("jpeg")), out[2].Snapshot)
	for _, b := range out {
		assert.Nil(t, b.MobileSnapshots)
	}

	for _, b := range boxes {
		assert.False(t, b.HasSnapshot(), "input boxes are not mutated")
	}

	warns := logs.FilterMessage("Failed to capture snapshot").All()
	require.Len(t, warns, 1)
	assert.Equal(t, "#b", warns[0].ContextMap()["selector"])
}

func TestCaptureSkipsBoxesWithoutArea(t *testing.T) {
	fs := &fakeSurface{}
	c := New(5, 20, zap.NewNop())

	out := c.Capture(context.Background(), fs, []schemas.BoundingBox{
		box("#flat", 10, 0, 20),
		box("#ok", 10, 5, 5),
	}, false)

	assert.Empty(t, out[0].Snapshot)
	assert.NotEmpty(t, out[1].Snapshot)
	assert.Len(t, fs.calls, 1)
}

func TestCaptureConcurrencyIsBounded(t *testing.T) {
	boxes := make([]schemas.BoundingBox, 12)
	for i := range boxes {
		boxes[i] = box("#b", float64(100+i*10), 10, 10)
	}
	fs := &fakeSurface{gate: make(chan struct{}), gateAt: DefaultConcurrency}
	c := New(DefaultConcurrency, 0, zap.NewNop())

	out := c.Capture(context.Background(), fs, boxes, false)

	assert.Equal(t, DefaultConcurrency, fs.maxSeen)
	assert.Len(t, fs.calls, len(boxes))
	for _, b := range out {
		assert.True(t, strings.HasPrefix(b.Snapshot, "data:image/jpeg;base64,"))
	}
}

func TestCaptureAdmitsInSubmissionOrder(t *testing.T) {
	var order []float64
	var mu sync.Mutex
	s := surfaceFunc(func(clip Clip) {
		mu.Lock()
		order = append(order, clip.X)
		mu.Unlock()
	})

	boxes := []schemas.BoundingBox{box("#1", 10, 5, 5), box("#2", 20, 5, 5), box("#3", 30, 5, 5), box("#4", 40, 5, 5)}
	New(1, 0, zap.NewNop()).Capture(context.Background(), s, boxes, false)

	assert.Equal(t, []float64{10, 20, 30, 40}, order)
}

type surfaceFunc func(Clip)

func (f surfaceFunc) CaptureClip(_ context.Context, clip Clip) ([]byte, error) {
	f(clip)
	return []byte{1}, nil
}
func (f surfaceFunc) CaptureViewport(context.Context) ([]byte, error) { return []byte{2}, nil }
func (f surfaceFunc) ScrollIntoView(_ context.Context, b schemas.BoundingBox) (Clip, error) {
	return Clip{X: b.X, Width: b.Width, Height: b.Height}, nil
}

func TestCaptureMobile(t *testing.T) {
	fs := &fakeSurface{}
	c := New(5, 20, zap.NewNop())

	out := c.Capture(context.Background(), fs, []schemas.BoundingBox{
		box("#one", 10, 100, 40),
		box("#two", 10, 100, 40),
	}, true)

	for _, b := range out {
		require.NotNil(t, b.MobileSnapshots)
		assert.Equal(t, DataURI([]byte("jpeg")), b.MobileSnapshots.ElementSnapshot)
		assert.Equal(t, DataURI([]byte("viewport")), b.MobileSnapshots.ViewportSnapshot)
		assert.Empty(t, b.Snapshot)
	}

	// Each scroll is immediately followed by its own element and viewport captures.
	require.Len(t, fs.events, 6)
	for i := 0; i < len(fs.events); i += 3 {
		assert.True(t, strings.HasPrefix(fs.events[i], "scroll:"))
		assert.Equal(t, []string{"clip", "viewport"}, fs.events[i+1:i+3])
	}
}

func TestCaptureCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := &fakeSurface{}
	out := New(2, 20, zap.NewNop()).Capture(ctx, fs, []schemas.BoundingBox{box("#a", 10, 5, 5)}, false)

	require.Len(t, out, 1)
	assert.False(t, out[0].HasSnapshot())
	assert.Empty(t, fs.calls)
}

func TestCaptureGraph(t *testing.T) {
	g := schemas.Graph{
		URL:     "https://example.com",
		Sources: []schemas.BoundingBox{box("#src", 10, 5, 5)},
		Targets: []schemas.BoundingBox{box("#t1", 20, 5, 5), box("#t2", 30, 5, 5)},
	}
	out := New(5, 20, zap.NewNop()).CaptureGraph(context.Background(), &fakeSurface{}, g, false)

	assert.Equal(t, g.URL, out.URL)
	require.Len(t, out.Sources, 1)
	require.Len(t, out.Targets, 2)
	assert.Equal(t, "#src", out.Sources[0].Selector)
	assert.Equal(t, "#t2", out.Targets[1].Selector)
	assert.True(t, out.Sources[0].HasSnapshot())
	assert.True(t, out.Targets[1].HasSnapshot())
}

func TestClipFor(t *testing.T) {
	tests := []struct {
		name string
		box  schemas.BoundingBox
		want Clip
	}{
		{
			name: "interior box",
			box:  schemas.BoundingBox{X: 100, Y: 200, Width: 50, Height: 30},
			want: Clip{X: 80, Y: 180, Width: 90, Height: 70},
		},
		{
			name: "near the origin",
			box:  schemas.BoundingBox{X: 5, Y: 12, Width: 50, Height: 30},
			want: Clip{X: 0, Y: 0, Width: 75, Height: 62},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClipFor(tt.box, 20))
		})
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(0, -1, zap.NewNop())
	assert.EqualValues(t, DefaultConcurrency, c.concurrency)
	assert.Equal(t, DefaultPadding, c.padding)
}
