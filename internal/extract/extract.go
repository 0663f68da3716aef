// Package extract pulls positioned text runs and tables out of PDF files.
package extract

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/reportsum/internal/types"
)

// Result holds both extractor outputs for one file.
type Result struct {
	Text   []types.PageText
	Tables []types.PageTables
}

// Both runs the text and table sources concurrently on the same file. They
// share no state, so the only coordination is waiting for both.
func Both(ctx context.Context, path string, ts TextSource, tbs TableSource) (*Result, error) {
	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pages, err := ts.ExtractText(gctx, path)
		res.Text = pages
		return err
	})
	g.Go(func() error {
		pages, err := tbs.ExtractTables(gctx, path)
		res.Tables = pages
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &res, nil
}
