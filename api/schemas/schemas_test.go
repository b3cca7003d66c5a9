package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestIsMobileUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want bool
	}{
		{"iPhone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", true},
		{"upper case", "SOMETHING MOBILE SAFARI", true},
		{"desktop", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/126.0", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMobileUserAgent(tt.ua))
		})
	}
}

func TestRowUA(t *testing.T) {
	assert.Equal(t, "", Row{}.UA())
	assert.False(t, Row{}.IsMobile())

	r := Row{UserAgent: strPtr("Android Mobile")}
	assert.Equal(t, "Android Mobile", r.UA())
	assert.True(t, r.IsMobile())
}

func TestBoundingBoxPredicates(t *testing.T) {
	assert.True(t, BoundingBox{Selector: "#a", Position: "static"}.IsZero(), "metadata does not count as geometry")
	assert.False(t, BoundingBox{Left: 1}.IsZero())
	assert.False(t, BoundingBox{Width: 10}.HasArea())
	assert.True(t, BoundingBox{Width: 10, Height: 1}.HasArea())
	assert.False(t, BoundingBox{}.HasSnapshot())
	assert.True(t, BoundingBox{MobileSnapshots: &MobileSnapshots{}}.HasSnapshot())
}

func TestBoundingBoxJSONTags(t *testing.T) {
	z := 3
	b := BoundingBox{Selector: "#cta", Role: RoleSource, Width: 5, ZIndex: &z}
	data, err := json.Marshal(b)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "#cta", m["selector"])
	assert.Equal(t, "source", m["role"])
	assert.EqualValues(t, 3, m["zIndex"])
	assert.Contains(t, m, "click_frequency")
	assert.NotContains(t, m, "snapshot", "empty snapshot is omitted")
	assert.NotContains(t, m, "mobile_snapshots")
}

func TestBatchResultFlattensPagination(t *testing.T) {
	data, err := json.Marshal(BatchResult{PaginationState: PaginationState{Cursor: 5, Total: 7}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":null,"cursor":5,"total":7}`, string(data))
}
