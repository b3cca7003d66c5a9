package results

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

// rect builds a box from its left/top corner and size, filling every geometry field.
func rect(sel string, left, top, width, height float64) schemas.BoundingBox {
	return schemas.BoundingBox{
		Selector: sel,
		X:        left,
		Y:        top,
		Width:    width,
		Height:   height,
		Left:     left,
		Top:      top,
		Right:    left + width,
		Bottom:   top + height,
	}
}

func TestSanitizeGraph(t *testing.T) {
	t.Run("drops all-zero boxes but keeps partial zeros", func(t *testing.T) {
		g := schemas.Graph{
			URL: "https://example.com",
			Sources: []schemas.BoundingBox{
				{Selector: "#hidden", Position: "absolute"},
				rect("#cta", 0, 0, 10, 10),
			},
			Targets: []schemas.BoundingBox{
				{Selector: "form"},
				{Selector: ".edge", Left: 0, Right: 1},
			},
		}

		out, ok := SanitizeGraph(g)
		require.True(t, ok)
		assert.Equal(t, "https://example.com", out.URL)
		require.Len(t, out.Sources, 1)
		assert.Equal(t, "#cta", out.Sources[0].Selector)
		require.Len(t, out.Targets, 1)
		assert.Equal(t, ".edge", out.Targets[0].Selector)
	})

	t.Run("graph with only degenerate boxes is discarded", func(t *testing.T) {
		_, ok := SanitizeGraph(schemas.Graph{
			Sources: []schemas.BoundingBox{{Selector: "#a"}},
			Targets: []schemas.BoundingBox{{Selector: "#b"}},
		})
		assert.False(t, ok)
	})

	t.Run("empty graph is discarded", func(t *testing.T) {
		_, ok := SanitizeGraph(schemas.Graph{URL: "https://example.com"})
		assert.False(t, ok)
	})

	t.Run("input is not modified", func(t *testing.T) {
		sources := []schemas.BoundingBox{{Selector: "#zero"}, rect("#a", 1, 1, 1, 1)}
		_, _ = SanitizeGraph(schemas.Graph{Sources: sources})
		assert.Len(t, sources, 2)
		assert.Equal(t, "#zero", sources[0].Selector)
	})
}

func TestSanitize(t *testing.T) {
	graphs := []schemas.Graph{
		{URL: "a", Sources: []schemas.BoundingBox{rect("#a", 1, 1, 1, 1)}},
		{URL: "b", Sources: []schemas.BoundingBox{{Selector: "#zero"}}},
		{URL: "c", Targets: []schemas.BoundingBox{rect("form", 5, 5, 5, 5)}},
	}

	out := Sanitize(graphs)
	urls := make([]string, 0, len(out))
	for _, g := range out {
		urls = append(urls, g.URL)
	}
	assert.Equal(t, []string{"a", "c"}, urls)
}

func TestOverlaps(t *testing.T) {
	base := rect("s", 10, 10, 10, 10) // spans 10..20 on both axes

	tests := []struct {
		name   string
		target schemas.BoundingBox
		want   bool
	}{
		{"contained", rect("t", 12, 12, 2, 2), true},
		{"partial", rect("t", 15, 15, 10, 10), true},
		{"shares right edge", rect("t", 20, 10, 5, 10), true},
		{"shares left edge", rect("t", 5, 10, 5, 10), true},
		{"shares bottom edge", rect("t", 10, 20, 10, 5), true},
		{"touches corner", rect("t", 20, 20, 5, 5), true},
		{"right of", rect("t", 20.5, 10, 5, 5), false},
		{"left of", rect("t", 0, 10, 9.5, 5), false},
		{"below", rect("t", 10, 21, 5, 5), false},
		{"above", rect("t", 10, 0, 5, 9), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(base, tt.target))
			assert.Equal(t, tt.want, Overlaps(tt.target, base), "overlap is symmetric")
		})
	}
}

func TestIntersections(t *testing.T) {
	g := schemas.Graph{
		Sources: []schemas.BoundingBox{
			rect("#s1", 0, 0, 10, 10),
			rect("#s2", 100, 100, 10, 10),
		},
		Targets: []schemas.BoundingBox{
			rect("form", 10, 0, 10, 10), // touches #s1 on its right edge
			rect("button", 105, 105, 2, 2),
			rect(".far", 500, 500, 1, 1),
		},
	}

	got := Intersections(g)
	want := []schemas.Intersection{
		{Source: "#s1", Target: "form", SourceBox: g.Sources[0], TargetBox: g.Targets[0]},
		{Source: "#s2", Target: "button", SourceBox: g.Sources[1], TargetBox: g.Targets[1]},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Intersections() mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, Intersections(schemas.Graph{Sources: g.Sources}))
	assert.Len(t, AllIntersections([]schemas.Graph{g, g}), 4)
}
