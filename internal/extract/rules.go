package extract

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/andybalholm/cascadia"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

// The rules below mirror extract.js so they can be exercised without a browser.

// Point is a viewport coordinate.
type Point struct {
	X, Y float64
}

// Rect is a client rectangle.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Top() float64    { return r.Y }
func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// ComputedStyle carries the subset of computed CSS the rules read.
type ComputedStyle struct {
	Display    string
	Visibility string
	Opacity    string
	ZIndex     string
	Position   string
}

// Element is the view of a DOM node the rules need.
type Element interface {
	ID() string
	ClassList() []string
	BoundingClientRect() Rect
	OffsetSize() (width, height float64)
	ComputedStyle() ComputedStyle
	// Contains reports whether other is this element or one of its descendants.
	Contains(other Element) bool
}

// Document resolves selectors and hit tests.
type Document interface {
	// QuerySelectorAll returns matches in document order, or an error for invalid syntax.
	QuerySelectorAll(selector string) ([]Element, error)
	// ElementFromPoint returns the topmost element at the point, or nil.
	ElementFromPoint(x, y float64) Element
}

// ValidSelector reports whether sel parses as a CSS selector group.
func ValidSelector(sel string) bool {
	if strings.TrimSpace(sel) == "" {
		return false
	}
	_, err := cascadia.ParseGroup(sel)
	return err == nil
}

// IsVisible applies the computed-style and offset-size checks.
func IsVisible(el Element) bool {
	style := el.ComputedStyle()
	if style.Display == "none" || style.Visibility == "hidden" || style.Opacity == "0" {
		return false
	}
	w, h := el.OffsetSize()
	return w > 0 && h > 0
}

// SamplePoints returns the four corners inset by one pixel followed by the center.
func SamplePoints(r Rect) []Point {
	return []Point{
		{r.Left() + 1, r.Top() + 1},
		{r.Right() - 1, r.Top() + 1},
		{r.Left() + 1, r.Bottom() - 1},
		{r.Right() - 1, r.Bottom() - 1},
		{r.Left() + r.Width/2, r.Top() + r.Height/2},
	}
}

// IsOnTop passes only if every sample point resolves to el or a descendant of el.
func IsOnTop(doc Document, el Element) bool {
	for _, p := range SamplePoints(el.BoundingClientRect()) {
		top := doc.ElementFromPoint(p.X, p.Y)
		if top == nil || !el.Contains(top) {
			return false
		}
	}
	return true
}

// DeriveSelector prefers #id, then the dot-joined class list, then NoSelector.
func DeriveSelector(el Element) string {
	if id := el.ID(); id != "" {
		return "#" + id
	}
	if classes := el.ClassList(); len(classes) > 0 {
		return "." + strings.Join(classes, ".")
	}
	return schemas.NoSelector
}

// ParseZIndex follows parseInt: a leading signed integer, otherwise nil.
func ParseZIndex(v string) *int {
	v = strings.TrimLeftFunc(v, unicode.IsSpace)
	end := 0
	if end < len(v) && (v[end] == '-' || v[end] == '+') {
		end++
	}
	digits := end
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == digits {
		return nil
	}
	n, err := strconv.Atoi(v[:end])
	if err != nil {
		return nil
	}
	return &n
}

// CollectBoxes returns the boxes of the visible, unobstructed matches of selector.
// An invalid selector yields no boxes.
func CollectBoxes(doc Document, selector string) []RawBox {
	if !ValidSelector(selector) {
		return nil
	}
	elements, err := doc.QuerySelectorAll(selector)
	if err != nil {
		return nil
	}

	var boxes []RawBox
	for _, el := range elements {
		if !IsVisible(el) || !IsOnTop(doc, el) {
			continue
		}
		r := el.BoundingClientRect()
		style := el.ComputedStyle()
		boxes = append(boxes, RawBox{
			Selector: DeriveSelector(el),
			X:        r.X,
			Y:        r.Y,
			Width:    r.Width,
			Height:   r.Height,
			Top:      r.Top(),
			Right:    r.Right(),
			Bottom:   r.Bottom(),
			Left:     r.Left(),
			ZIndex:   ParseZIndex(style.ZIndex),
			Position: style.Position,
		})
	}
	return boxes
}

// Evaluate runs both selector groups against doc.
func Evaluate(doc Document, q Query) RawResult {
	res := RawResult{
		Sources: CollectBoxes(doc, q.Source),
		Targets: []RawBox{},
	}
	if res.Sources == nil {
		res.Sources = []RawBox{}
	}
	for _, t := range q.Targets {
		res.Targets = append(res.Targets, CollectBoxes(doc, t)...)
	}
	return res
}

// DocumentExecutor adapts a Document to DOMQueryExecutor.
type DocumentExecutor struct {
	Doc Document
}

// QueryBoxes implements DOMQueryExecutor.
func (d DocumentExecutor) QueryBoxes(ctx context.Context, q Query) (RawResult, error) {
	if err := ctx.Err(); err != nil {
		return RawResult{}, err
	}
	return Evaluate(d.Doc, q), nil
}
