package rowsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/config"
)

const maxErrorBody = 512

// bundlesResponse is the subset of a daily RUM bundle payload that carries rows.
type bundlesResponse struct {
	RUMBundles []struct {
		URL       string   `json:"url"`
		UserAgent *string  `json:"userAgent"`
		Weight    *float64 `json:"weight"`
		Events    []struct {
			Source     string `json:"source"`
			Checkpoint string `json:"checkpoint"`
		} `json:"events"`
	} `json:"rumBundles"`
}

// BundlesSource reads rows from the daily RUM bundle endpoint.
type BundlesSource struct {
	client      *http.Client
	baseURL     string
	domainKey   string
	concurrency int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

var _ schemas.RowSource = (*BundlesSource)(nil)

// NewBundlesSource creates a source. A nil client uses a default pooled client.
func NewBundlesSource(cfg config.BundlesConfig, client *http.Client, logger *zap.Logger) *BundlesSource {
	if client == nil {
		client = newHTTPClient(0)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	return &BundlesSource{
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		domainKey:   cfg.DomainKey,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger.Named("rowsource").With(zap.String("kind", config.RowSourceBundles)),
	}
}

// FetchRows implements schemas.RowSource. Days are fetched concurrently and
// concatenated in date order; any failed day fails the whole fetch.
func (s *BundlesSource) FetchRows(ctx context.Context, q schemas.RowQuery) ([]schemas.Row, error) {
	days := DayPaths(q.StartDate, q.EndDate)
	perDay := make([][]schemas.Row, len(days))
	domainKey := q.DomainKey
	if domainKey == "" {
		domainKey = s.domainKey
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, day := range days {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			rows, err := s.fetchDay(gctx, q.Hostname, day, domainKey, q.Checkpoint)
			if err != nil {
				return err
			}
			perDay[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			return nil, upstream
		}
		return nil, &UpstreamError{Source: config.RowSourceBundles, Err: err}
	}

	var rows []schemas.Row
	for _, r := range perDay {
		rows = append(rows, r...)
	}
	if rows == nil {
		rows = []schemas.Row{}
	}
	s.logger.Info("Fetched rows",
		zap.String("hostname", q.Hostname),
		zap.Int("days", len(days)),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rows, nil
}

func (s *BundlesSource) dayURL(hostname, day, domainKey, checkpoint string) string {
	params := url.Values{}
	params.Set("domainkey", domainKey)
	params.Set("checkpoint", checkpoint)
	return fmt.Sprintf("%s/%s/%s?%s", s.baseURL, url.PathEscape(hostname), day, params.Encode())
}

func (s *BundlesSource) fetchDay(ctx context.Context, hostname, day, domainKey, checkpoint string) ([]schemas.Row, error) {
	endpoint := s.dayURL(hostname, day, domainKey, checkpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &UpstreamError{Source: config.RowSourceBundles, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Source: config.RowSourceBundles, Err: fmt.Errorf("request for %s failed: %w", day, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{
			Source: config.RowSourceBundles,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("bundles for %s: %s", day, strings.TrimSpace(string(body))),
		}
	}

	var payload bundlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &UpstreamError{Source: config.RowSourceBundles, Err: fmt.Errorf("invalid bundles payload for %s: %w", day, err)}
	}

	rows := rowsFromBundles(payload, checkpoint)
	s.logger.Debug("Fetched day", zap.String("day", day), zap.Int("bundles", len(payload.RUMBundles)), zap.Int("rows", len(rows)))
	return rows, nil
}

// rowsFromBundles yields one row per event that hit checkpoint, in payload order.
func rowsFromBundles(payload bundlesResponse, checkpoint string) []schemas.Row {
	var rows []schemas.Row
	for _, b := range payload.RUMBundles {
		for _, ev := range b.Events {
			if ev.Checkpoint != checkpoint {
				continue
			}
			rows = append(rows, schemas.Row{
				URL:       b.URL,
				Source:    ev.Source,
				UserAgent: b.UserAgent,
				Weight:    b.Weight,
			})
		}
	}
	return rows
}
