package rowsource

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

var rowColumns = []string{"url", "source", "user_agent", "click_frequency", "weight"}

func TestSQLSource_FetchRows(t *testing.T) {
	ctx := context.Background()
	query, err := LoadQuery("rows_by_checkpoint")
	require.NoError(t, err)

	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148"
	freq := 42.0
	weight := 10.0
	mockPool.ExpectQuery(flexibleSQLMatcher(query)).
		WillReturnRows(pgxmock.NewRows(rowColumns).
			AddRow("https://www.example.com/", "#hero-cta", &ua, &freq, &weight).
			AddRow("https://www.example.com/faq", ".accordion", (*string)(nil), (*float64)(nil), (*float64)(nil)))

	core, logs := observer.New(zapcore.DebugLevel)
	src, err := NewSQLSource(mockPool, "rows_by_checkpoint", zap.New(core))
	require.NoError(t, err)

	rows, err := src.FetchRows(ctx, schemas.RowQuery{
		Hostname:   "www.example.com",
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
		Checkpoint: "click",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].IsMobile())
	require.NotNil(t, rows[0].ClickFrequency)
	assert.Equal(t, 42.0, *rows[0].ClickFrequency)
	assert.Nil(t, rows[1].UserAgent)
	assert.Nil(t, rows[1].ClickFrequency)
	assert.NoError(t, mockPool.ExpectationsWereMet())

	debug := logs.FilterMessage("Debug SQL").All()
	require.Len(t, debug, 1)
	sql := debug[0].ContextMap()["sql"].(string)
	assert.Contains(t, sql, "hostname = 'www.example.com'")
	assert.Contains(t, sql, "BETWEEN '2025-01-01' AND '2025-01-07'")
}

func TestSQLSource_Errors(t *testing.T) {
	ctx := context.Background()
	query, err := LoadQuery("rows_by_checkpoint")
	require.NoError(t, err)

	t.Run("query failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		dbErr := errors.New("relation does not exist")
		mockPool.ExpectQuery(flexibleSQLMatcher(query)).WillReturnError(dbErr)

		src, err := NewSQLSource(mockPool, "rows_by_checkpoint", zap.NewNop())
		require.NoError(t, err)
		_, err = src.FetchRows(ctx, schemas.RowQuery{})

		var upstream *UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.ErrorIs(t, err, dbErr)
	})

	t.Run("iteration failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		iterErr := errors.New("connection lost")
		mockPool.ExpectQuery(flexibleSQLMatcher(query)).
			WillReturnRows(pgxmock.NewRows(rowColumns).
				AddRow("https://www.example.com/", "#a", (*string)(nil), (*float64)(nil), (*float64)(nil)).
				RowError(0, iterErr))

		src, err := NewSQLSource(mockPool, "rows_by_checkpoint", zap.NewNop())
		require.NoError(t, err)
		_, err = src.FetchRows(ctx, schemas.RowQuery{})
		assert.ErrorIs(t, err, iterErr)
	})

	t.Run("unknown query name", func(t *testing.T) {
		_, err := NewSQLSource(nil, "does_not_exist", zap.NewNop())
		assert.ErrorContains(t, err, `unknown query "does_not_exist"`)
	})
}

func TestQueryArgs(t *testing.T) {
	args := queryArgs(schemas.RowQuery{
		Hostname:   "www.example.com",
		StartDate:  time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		Checkpoint: "viewblock",
	})
	assert.Equal(t, pgx.NamedArgs{
		"hostname":   "www.example.com",
		"checkpoint": "viewblock",
		"startdate":  "2025-02-01",
		"enddate":    "2025-02-03",
	}, args)

	// Every placeholder in the embedded query has a binding.
	query, err := LoadQuery("rows_by_checkpoint")
	require.NoError(t, err)
	for _, m := range regexp.MustCompile(`@(\w+)`).FindAllStringSubmatch(query, -1) {
		assert.Contains(t, args, m[1])
	}
}
