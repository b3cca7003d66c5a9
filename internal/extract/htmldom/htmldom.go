// Package htmldom is a static Document for the extraction rules. Layout comes
// from markup instead of a rendering engine:
//
//	data-rect="x,y,width,height"   client rectangle (elements without it are not hit-testable)
//	data-offset="width,height"     offset size, defaults to the rect size
//	style="display:none; z-index:3; position:absolute; opacity:0; visibility:hidden"
//
// ElementFromPoint picks the hit-testable element with the highest z-index
// (auto counts as 0); ties go to the later element in document order.
package htmldom

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/bbox-cli/internal/extract"
)

// Document implements extract.Document over a parsed HTML tree.
type Document struct {
	doc     *goquery.Document
	byNode  map[*html.Node]*Element
	hitList []*Element // document order
}

var _ extract.Document = (*Document)(nil)

// Element implements extract.Element.
type Element struct {
	node    *html.Node
	rect    extract.Rect
	hasRect bool
	offsetW float64
	offsetH float64
	style   extract.ComputedStyle
}

var _ extract.Element = (*Element)(nil)

// Parse reads an annotated HTML document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	d := &Document{doc: doc, byNode: make(map[*html.Node]*Element)}
	var layoutErr error
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if layoutErr != nil {
			return
		}
		el, err := newElement(s)
		if err != nil {
			layoutErr = err
			return
		}
		d.byNode[el.node] = el
		if el.hasRect {
			d.hitList = append(d.hitList, el)
		}
	})
	if layoutErr != nil {
		return nil, layoutErr
	}
	return d, nil
}

// ParseString is Parse for inline fixtures.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

func newElement(s *goquery.Selection) (*Element, error) {
	el := &Element{
		node:  s.Nodes[0],
		style: parseStyle(s.AttrOr("style", "")),
	}

	if v, ok := s.Attr("data-rect"); ok {
		nums, err := parseFloats(v, 4)
		if err != nil {
			return nil, fmt.Errorf("invalid data-rect %q: %w", v, err)
		}
		el.rect = extract.Rect{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}
		el.hasRect = true
		el.offsetW, el.offsetH = nums[2], nums[3]
	}
	if v, ok := s.Attr("data-offset"); ok {
		nums, err := parseFloats(v, 2)
		if err != nil {
			return nil, fmt.Errorf("invalid data-offset %q: %w", v, err)
		}
		el.offsetW, el.offsetH = nums[0], nums[1]
	}
	if el.style.Display == "none" {
		el.offsetW, el.offsetH = 0, 0
	}
	return el, nil
}

func parseFloats(v string, n int) ([]float64, error) {
	parts := strings.Split(v, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func parseStyle(inline string) extract.ComputedStyle {
	style := extract.ComputedStyle{
		Display:    "block",
		Visibility: "visible",
		Opacity:    "1",
		ZIndex:     "auto",
		Position:   "static",
	}
	for _, decl := range strings.Split(inline, ";") {
		key, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "display":
			style.Display = value
		case "visibility":
			style.Visibility = value
		case "opacity":
			style.Opacity = value
		case "z-index":
			style.ZIndex = value
		case "position":
			style.Position = value
		}
	}
	return style
}

// QuerySelectorAll implements extract.Document.
func (d *Document) QuerySelectorAll(selector string) ([]extract.Element, error) {
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	var out []extract.Element
	for _, root := range d.doc.Nodes {
		for _, n := range cascadia.QueryAll(root, group) {
			if el, ok := d.byNode[n]; ok {
				out = append(out, el)
			}
		}
	}
	return out, nil
}

// ElementFromPoint implements extract.Document.
func (d *Document) ElementFromPoint(x, y float64) extract.Element {
	var best *Element
	bestZ := 0
	for _, el := range d.hitList {
		if !el.hitTestable() || !el.containsPoint(x, y) {
			continue
		}
		z := 0
		if p := extract.ParseZIndex(el.style.ZIndex); p != nil {
			z = *p
		}
		if best == nil || z >= bestZ {
			best, bestZ = el, z
		}
	}
	if best == nil {
		return nil
	}
	return best
}

func (e *Element) hitTestable() bool {
	return e.style.Display != "none" && e.style.Visibility != "hidden"
}

func (e *Element) containsPoint(x, y float64) bool {
	return x >= e.rect.Left() && x < e.rect.Right() && y >= e.rect.Top() && y < e.rect.Bottom()
}

// ID implements extract.Element.
func (e *Element) ID() string {
	for _, a := range e.node.Attr {
		if a.Key == "id" {
			return a.Val
		}
	}
	return ""
}

// ClassList implements extract.Element.
func (e *Element) ClassList() []string {
	for _, a := range e.node.Attr {
		if a.Key == "class" {
			return strings.Fields(a.Val)
		}
	}
	return nil
}

// BoundingClientRect implements extract.Element.
func (e *Element) BoundingClientRect() extract.Rect { return e.rect }

// OffsetSize implements extract.Element.
func (e *Element) OffsetSize() (float64, float64) { return e.offsetW, e.offsetH }

// ComputedStyle implements extract.Element.
func (e *Element) ComputedStyle() extract.ComputedStyle { return e.style }

// Contains implements extract.Element.
func (e *Element) Contains(other extract.Element) bool {
	o, ok := other.(*Element)
	if !ok || o == nil {
		return false
	}
	for n := o.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}
