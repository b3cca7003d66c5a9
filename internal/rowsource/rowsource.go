// Package rowsource fetches the analytics rows a session is built from.
package rowsource

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UpstreamError reports a failed fetch from the row provider. Status is the
// HTTP status when the provider answered, and zero otherwise.
type UpstreamError struct {
	Source string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s row source returned status %d: %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("%s row source failed: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Closer is implemented by sources that hold connections.
type Closer interface {
	Close()
}

// New builds the row source selected by cfg.RowSource.Kind.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.RowSource, error) {
	switch cfg.RowSource.Kind {
	case config.RowSourceBundles, "":
		client := newHTTPClient(cfg.Network.Timeout)
		return NewBundlesSource(cfg.RowSource.Bundles, client, logger), nil
	case config.RowSourceSQL:
		src, err := ConnectSQLSource(ctx, cfg.RowSource.SQL, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown row source kind %q", cfg.RowSource.Kind)
	}
}

// newHTTPClient returns a client with a bounded connection pool that decodes
// compressed responses.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		DisableCompression:    true,
	}
	return &http.Client{
		Transport: newDecompressingTransport(transport),
		Timeout:   timeout,
	}
}
