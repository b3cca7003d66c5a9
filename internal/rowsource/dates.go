package rowsource

import (
	"fmt"
	"time"
)

// DateLayout is the request date format.
const DateLayout = "2006-01-02"

const dayPathLayout = "2006/01/02"

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DayPaths returns one YYYY/MM/DD path segment per day in [start, end].
func DayPaths(start, end time.Time) []string {
	start = truncateDay(start)
	end = truncateDay(end)
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(dayPathLayout))
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
