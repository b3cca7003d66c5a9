package extract

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed extract.js
var extractScript string

// Expression builds the JavaScript expression that evaluates q in the page and
// returns a RawResult-shaped object.
func Expression(q Query) (string, error) {
	if q.Targets == nil {
		q.Targets = []string{}
	}
	arg, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("failed to encode query: %w", err)
	}
	return fmt.Sprintf("(%s)(%s)", strings.TrimSpace(extractScript), arg), nil
}
