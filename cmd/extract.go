package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/browser"
	"github.com/xkilldash9x/bbox-cli/internal/capture"
	"github.com/xkilldash9x/bbox-cli/internal/extract"
	"github.com/xkilldash9x/bbox-cli/internal/extract/htmldom"
	"github.com/xkilldash9x/bbox-cli/internal/observability"
	"github.com/xkilldash9x/bbox-cli/internal/pipeline"
	"github.com/xkilldash9x/bbox-cli/internal/results"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type extractOptions struct {
	source        string
	userAgent     string
	htmlFile      string
	intersections bool
}

type extractOutput struct {
	Graph         schemas.Graph          `json:"graph"`
	Intersections []schemas.Intersection `json:"intersections,omitempty"`
}

func newExtractCmd(a *app) *cobra.Command {
	var opts extractOptions
	extractCmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Extract the bounding boxes of a single page and print them as JSON",
		Long: `Extract opens <url> in the headless browser, computes the visible and
unobstructed source and target boxes, captures their snapshots and prints the
resulting graph.

With --html the page is read from an annotated HTML file instead and no
browser is started. Snapshots are not captured in that mode.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd.Context(), a, args[0], opts, cmd.OutOrStdout())
		},
	}

	extractCmd.Flags().StringVarP(&opts.source, "source", "s", "", "source selector to extract")
	extractCmd.Flags().StringVar(&opts.userAgent, "user-agent", "", "user agent of the row; agents containing \"mobile\" get mobile emulation")
	extractCmd.Flags().StringVar(&opts.htmlFile, "html", "", "read the page from an annotated HTML file instead of a browser")
	extractCmd.Flags().BoolVar(&opts.intersections, "intersections", false, "also report overlapping source and target boxes")
	return extractCmd
}

func runExtract(ctx context.Context, a *app, url string, opts extractOptions, out io.Writer) error {
	logger := observability.GetLogger()
	row := schemas.Row{URL: url, Source: opts.source}
	if opts.userAgent != "" {
		row.UserAgent = &opts.userAgent
	}
	extractor := extract.NewExtractor(a.cfg.Pipeline.TargetSelectors, logger)

	var (
		graph schemas.Graph
		err   error
	)
	if opts.htmlFile != "" {
		graph, err = extractFromFile(ctx, extractor, opts.htmlFile, row)
	} else {
		graph, err = extractFromBrowser(ctx, a, extractor, row, logger)
	}
	if err != nil {
		return err
	}

	result := extractOutput{Graph: graph}
	if opts.intersections {
		result.Intersections = results.Intersections(graph)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func extractFromFile(ctx context.Context, extractor *extract.Extractor, path string, row schemas.Row) (schemas.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return schemas.Graph{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := htmldom.Parse(f)
	if err != nil {
		return schemas.Graph{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	graph, err := extractor.Extract(ctx, extract.DocumentExecutor{Doc: doc}, row)
	if err != nil {
		return schemas.Graph{}, err
	}
	graph, _ = results.SanitizeGraph(graph)
	return graph, nil
}

func extractFromBrowser(ctx context.Context, a *app, extractor *extract.Extractor, row schemas.Row, logger *zap.Logger) (schemas.Graph, error) {
	manager, err := browser.NewManager(context.WithoutCancel(ctx), logger, a.cfg)
	if err != nil {
		return schemas.Graph{}, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
	}()

	capturer := capture.New(a.cfg.Pipeline.CaptureConcurrency, a.cfg.Pipeline.ClipPadding, logger)
	processor := pipeline.NewBrowserRowProcessor(pipeline.BrowserOpener(manager), extractor, capturer, logger)

	graph, ok := processor.Process(ctx, row)
	if err := ctx.Err(); err != nil {
		return schemas.Graph{}, err
	}
	if !ok {
		// The row was skipped or produced nothing; the log says which.
		return schemas.Graph{URL: row.URL, Sources: []schemas.BoundingBox{}, Targets: []schemas.BoundingBox{}}, nil
	}
	return graph, nil
}
