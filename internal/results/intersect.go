package results

import "github.com/xkilldash9x/bbox-cli/api/schemas"

// Overlaps reports whether two boxes intersect. The comparisons are strict, so
// rectangles that only share an edge count as overlapping.
func Overlaps(source, target schemas.BoundingBox) bool {
	disjoint := source.Right < target.Left ||
		source.Left > target.Right ||
		source.Bottom < target.Top ||
		source.Top > target.Bottom
	return !disjoint
}

// Intersections returns every overlapping (source, target) pair in g, ordered by
// source and then by target.
func Intersections(g schemas.Graph) []schemas.Intersection {
	var out []schemas.Intersection
	for _, s := range g.Sources {
		for _, t := range g.Targets {
			if !Overlaps(s, t) {
				continue
			}
			out = append(out, schemas.Intersection{
				Source:    s.Selector,
				Target:    t.Selector,
				SourceBox: s,
				TargetBox: t,
			})
		}
	}
	return out
}

// AllIntersections concatenates Intersections over a batch of graphs.
func AllIntersections(graphs []schemas.Graph) []schemas.Intersection {
	var out []schemas.Intersection
	for _, g := range graphs {
		out = append(out, Intersections(g)...)
	}
	return out
}
