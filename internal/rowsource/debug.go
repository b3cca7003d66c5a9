package rowsource

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FormatQueryForDebug inlines named parameters for logging. The result is never
// executed; strings are single-quoted without escaping.
func FormatQueryForDebug(query string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	// Longest first so @start is not replaced inside @startdate.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	out := query
	for _, k := range keys {
		re := regexp.MustCompile(`@` + regexp.QuoteMeta(k) + `\b`)
		out = re.ReplaceAllLiteralString(out, debugLiteral(args[k]))
	}
	return out
}

func debugLiteral(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + val + "'"
	case nil:
		return "NULL"
	case fmt.Stringer:
		return "'" + val.String() + "'"
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
