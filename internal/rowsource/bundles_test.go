package rowsource

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/config"
)

const dayOne = `{"rumBundles":[
  {"url":"https://www.example.com/","userAgent":"desktop:windows","weight":100,"events":[
    {"source":"#hero-cta","checkpoint":"click"},
    {"source":"","checkpoint":"enter"},
    {"source":".nav a","checkpoint":"click"}
  ]},
  {"url":"https://www.example.com/pricing","weight":10,"events":[
    {"source":".plan.pro","checkpoint":"viewblock"}
  ]}
]}`

const dayTwo = `{"rumBundles":[
  {"url":"https://www.example.com/contact","userAgent":"mobile:ios","events":[
    {"source":"form#contact","checkpoint":"click"}
  ]}
]}`

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func brotliBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, bw.Close())
	return buf.Bytes()
}

func newTestSource(t *testing.T, srv *httptest.Server, cfg config.BundlesConfig, logger *zap.Logger) *BundlesSource {
	t.Helper()
	cfg.BaseURL = srv.URL + "/bundles/"
	client := newHTTPClient(5 * time.Second)
	t.Cleanup(client.CloseIdleConnections)
	return NewBundlesSource(cfg, client, logger)
}

func rowQuery(t *testing.T, start, end string) schemas.RowQuery {
	t.Helper()
	s, err := ParseDate(start)
	require.NoError(t, err)
	e, err := ParseDate(end)
	require.NoError(t, err)
	return schemas.RowQuery{Hostname: "www.example.com", StartDate: s, EndDate: e, Checkpoint: "click"}
}

func TestBundlesSource_FetchRows(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "request-key", r.URL.Query().Get("domainkey"))
		assert.Equal(t, "click", r.URL.Query().Get("checkpoint"))
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "br")

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bundles/www.example.com/2025/01/31":
			// Slowest day is first; results must still be in date order.
			time.Sleep(50 * time.Millisecond)
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(gzipBytes(t, dayOne))
		case "/bundles/www.example.com/2025/02/01":
			w.Header().Set("Content-Encoding", "br")
			_, _ = w.Write(brotliBytes(t, dayTwo))
		case "/bundles/www.example.com/2025/02/02":
			_, _ = w.Write([]byte(`{"rumBundles":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	src := newTestSource(t, srv, config.BundlesConfig{DomainKey: "config-key", Concurrency: 3}, zap.New(core))

	q := rowQuery(t, "2025-01-31", "2025-02-02")
	q.DomainKey = "request-key"
	rows, err := src.FetchRows(context.Background(), q)
	require.NoError(t, err)

	assert.EqualValues(t, 3, requests.Load())
	require.Len(t, rows, 3)
	assert.Equal(t, "#hero-cta", rows[0].Source)
	assert.Equal(t, ".nav a", rows[1].Source)
	assert.Equal(t, "form#contact", rows[2].Source)
	assert.Equal(t, "desktop:windows", rows[0].UA())
	require.NotNil(t, rows[0].Weight)
	assert.Equal(t, 100.0, *rows[0].Weight)
	assert.Nil(t, rows[2].Weight)
	assert.True(t, rows[2].IsMobile())

	entries := logs.FilterMessage("Fetched rows").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 3, entries[0].ContextMap()["rows"])
}

func TestBundlesSource_DomainKeyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "config-key", r.URL.Query().Get("domainkey"))
		_, _ = w.Write([]byte(`{"rumBundles":[]}`))
	}))
	defer srv.Close()

	src := newTestSource(t, srv, config.BundlesConfig{DomainKey: "config-key"}, zap.NewNop())
	rows, err := src.FetchRows(context.Background(), rowQuery(t, "2025-03-01", "2025-03-01"))
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestBundlesSource_UpstreamErrors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/02") {
				http.Error(w, "forbidden domainkey", http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(`{"rumBundles":[]}`))
		}))
		defer srv.Close()

		src := newTestSource(t, srv, config.BundlesConfig{Concurrency: 2}, zap.NewNop())
		_, err := src.FetchRows(context.Background(), rowQuery(t, "2025-03-01", "2025-03-03"))

		var upstream *UpstreamError
		require.True(t, errors.As(err, &upstream))
		assert.Equal(t, http.StatusForbidden, upstream.Status)
		assert.Contains(t, err.Error(), "forbidden domainkey")
		assert.Contains(t, err.Error(), "2025/03/02")
	})

	t.Run("malformed payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"rumBundles":`))
		}))
		defer srv.Close()

		src := newTestSource(t, srv, config.BundlesConfig{}, zap.NewNop())
		_, err := src.FetchRows(context.Background(), rowQuery(t, "2025-03-01", "2025-03-01"))

		var upstream *UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Zero(t, upstream.Status)
		assert.ErrorContains(t, err, "invalid bundles payload")
	})

	t.Run("canceled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"rumBundles":[]}`))
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		src := newTestSource(t, srv, config.BundlesConfig{}, zap.NewNop())
		_, err := src.FetchRows(ctx, rowQuery(t, "2025-03-01", "2025-03-02"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBundlesSource_DayURL(t *testing.T) {
	src := NewBundlesSource(config.BundlesConfig{BaseURL: "https://bundles.example/bundles/"}, &http.Client{}, zap.NewNop())
	got := src.dayURL("shop.example.com", "2025/01/02", "k&1", "click")
	assert.Equal(t, "https://bundles.example/bundles/shop.example.com/2025/01/02?checkpoint=click&domainkey=k%261", got)
}

func TestRowsFromBundles(t *testing.T) {
	var payload bundlesResponse
	require.NoError(t, json.Unmarshal([]byte(dayOne), &payload))

	assert.Len(t, rowsFromBundles(payload, "click"), 2)
	assert.Len(t, rowsFromBundles(payload, "viewblock"), 1)
	assert.Empty(t, rowsFromBundles(payload, "missing"))
}

func TestNewFactory(t *testing.T) {
	cfg := config.NewDefaultConfig()

	src, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &BundlesSource{}, src)

	cfg.RowSource.Kind = config.RowSourceSQL
	cfg.RowSource.SQL.URL = ""
	_, err = New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "rowsource.sql.url is required")

	cfg.RowSource.Kind = "bigquery"
	_, err = New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, `unknown row source kind "bigquery"`)
}
