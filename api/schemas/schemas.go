package schemas

import (
	"strings"
	"time"
)

// Role tags a bounding box with the selector group it was extracted for.
type Role string

const (
	RoleSource Role = "source"
	RoleTarget Role = "target"
)

// NoSelector is reported when a matched element has neither an id nor classes.
const NoSelector = "No Selector"

// -- Input Rows --

// Row is one unit of input work drawn from the analytics dataset.
type Row struct {
	URL            string   `json:"url"`
	Source         string   `json:"source"`
	UserAgent      *string  `json:"user_agent"`
	ClickFrequency *float64 `json:"click_frequency"`
	Weight         *float64 `json:"weight"`
}

// UA returns the row's user agent, or an empty string when none was recorded.
func (r Row) UA() string {
	if r.UserAgent == nil {
		return ""
	}
	return *r.UserAgent
}

// IsMobile reports whether the row was recorded from a mobile-class user agent.
func (r Row) IsMobile() bool {
	return IsMobileUserAgent(r.UA())
}

// IsMobileUserAgent is a case-insensitive substring match on "mobile".
func IsMobileUserAgent(ua string) bool {
	return strings.Contains(strings.ToLower(ua), "mobile")
}

// -- Extraction Output --

// MobileSnapshots holds the pair of images captured for mobile rows.
type MobileSnapshots struct {
	ElementSnapshot  string `json:"element_snapshot"`
	ViewportSnapshot string `json:"viewport_snapshot"`
}

// BoundingBox is the rendered rectangle of one matched element plus its metadata.
type BoundingBox struct {
	Selector        string           `json:"selector"`
	Role            Role             `json:"role"`
	X               float64          `json:"x"`
	Y               float64          `json:"y"`
	Width           float64          `json:"width"`
	Height          float64          `json:"height"`
	Top             float64          `json:"top"`
	Right           float64          `json:"right"`
	Bottom          float64          `json:"bottom"`
	Left            float64          `json:"left"`
	ZIndex          *int             `json:"zIndex"`
	Position        string           `json:"position"`
	URL             string           `json:"url"`
	ClickFrequency  *float64         `json:"click_frequency"`
	Snapshot        string           `json:"snapshot,omitempty"`
	MobileSnapshots *MobileSnapshots `json:"mobile_snapshots,omitempty"`
}

// IsZero reports whether every numeric geometry field is exactly zero.
func (b BoundingBox) IsZero() bool {
	return b.X == 0 && b.Y == 0 &&
		b.Width == 0 && b.Height == 0 &&
		b.Top == 0 && b.Right == 0 &&
		b.Bottom == 0 && b.Left == 0
}

// HasArea reports whether the box can be captured.
func (b BoundingBox) HasArea() bool {
	return b.Width > 0 && b.Height > 0
}

// HasSnapshot reports whether any image was attached to the box.
func (b BoundingBox) HasSnapshot() bool {
	return b.Snapshot != "" || b.MobileSnapshots != nil
}

// Graph is the extraction result for a single row.
type Graph struct {
	Sources []BoundingBox `json:"sources"`
	Targets []BoundingBox `json:"targets"`
	URL     string        `json:"url"`
}

// IsEmpty reports whether the graph carries no boxes at all.
func (g Graph) IsEmpty() bool {
	return len(g.Sources) == 0 && len(g.Targets) == 0
}

// Intersection records one overlapping (source, target) pair.
type Intersection struct {
	Source    string      `json:"source"`
	Target    string      `json:"target"`
	SourceBox BoundingBox `json:"sourceBox"`
	TargetBox BoundingBox `json:"targetBox"`
}

// -- Pagination --

// PaginationState locates a batch within a frozen row sequence. Cursor counts rows
// scanned, not rows matched.
type PaginationState struct {
	Cursor int `json:"cursor"`
	Total  int `json:"total"`
}

// BatchResult is what one pipeline invocation produces.
type BatchResult struct {
	Results []Graph `json:"result"`
	PaginationState
}

// SessionSnapshot is the frozen dataset a paginated session walks over.
type SessionSnapshot struct {
	SessionID string    `json:"sessionId"`
	Rows      []Row     `json:"rows"`
	CreatedAt time.Time `json:"createdAt"`
}

// BatchResponse is the payload returned by both the start and next entry points.
type BatchResponse struct {
	Result        []Graph        `json:"result"`
	SessionID     string         `json:"sessionId"`
	Total         int            `json:"total"`
	Cursor        int            `json:"cursor"`
	Intersections []Intersection `json:"intersections,omitempty"`
}

// -- Browser Console --

// ConsoleRecord is a single console or exception entry emitted by a page.
type ConsoleRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
}
