package results

import "github.com/xkilldash9x/bbox-cli/api/schemas"

// SanitizeGraph drops degenerate boxes from g. The second return value is false
// when nothing survives and the graph should be discarded.
func SanitizeGraph(g schemas.Graph) (schemas.Graph, bool) {
	out := schemas.Graph{
		URL:     g.URL,
		Sources: dropZeroBoxes(g.Sources),
		Targets: dropZeroBoxes(g.Targets),
	}
	return out, !out.IsEmpty()
}

// Sanitize applies SanitizeGraph to every graph and keeps the non-empty ones,
// preserving order.
func Sanitize(graphs []schemas.Graph) []schemas.Graph {
	out := make([]schemas.Graph, 0, len(graphs))
	for _, g := range graphs {
		if cleaned, ok := SanitizeGraph(g); ok {
			out = append(out, cleaned)
		}
	}
	return out
}

func dropZeroBoxes(boxes []schemas.BoundingBox) []schemas.BoundingBox {
	kept := make([]schemas.BoundingBox, 0, len(boxes))
	for _, b := range boxes {
		if b.IsZero() {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}
