package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/tables"
	"github.com/tsawler/tabula/text"

	"github.com/jackzampolin/reportsum/internal/types"
)

// TableExtractor detects tables with tabula's geometric detector, which
// clusters text fragments by whitespace alignment and ruling lines.
type TableExtractor struct {
	Logger *slog.Logger
	Config tables.Config
}

var _ TableSource = (*TableExtractor)(nil)

// NewTableExtractor creates a table extractor with the detector defaults.
func NewTableExtractor(logger *slog.Logger) *TableExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableExtractor{Logger: logger, Config: tables.DefaultConfig()}
}

// ExtractTables returns one PageTables per page, in page order. Pages
// without tables yield an empty Tables slice.
func (e *TableExtractor) ExtractTables(ctx context.Context, path string) ([]types.PageTables, error) {
	detector := tables.NewGeometricDetector()
	if err := detector.Configure(e.Config); err != nil {
		return nil, fmt.Errorf("failed to configure table detector: %w", err)
	}

	var out []types.PageTables
	total := 0
	err := eachPage(ctx, path, func(idx int, pg pageData) error {
		page := model.NewPage(pg.width, pg.height)
		page.Number = idx + 1
		page.RawText = toModelFragments(pg.fragments)

		detected, err := detector.Detect(page)
		if err != nil {
			// Detection is heuristic; a failure on one page means no tables there.
			e.Logger.Warn("table detection failed", "path", path, "page", idx+1, "error", err)
			detected = nil
		}

		pt := types.PageTables{Index: idx, Tables: make([]types.Table, 0, len(detected))}
		for _, t := range detected {
			if t == nil || len(t.Rows) == 0 {
				continue
			}
			pt.Tables = append(pt.Tables, convertTable(t, pg.height))
		}
		total += len(pt.Tables)
		out = append(out, pt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.Logger.Debug("tables extracted", "path", path, "pages", len(out), "tables", total)
	return out, nil
}

func toModelFragments(fragments []text.TextFragment) []model.TextFragment {
	out := make([]model.TextFragment, 0, len(fragments))
	for _, f := range fragments {
		if Normalize(f.Text) == "" {
			continue
		}
		h := f.Height
		if h <= 0 {
			h = f.FontSize
		}
		out = append(out, model.TextFragment{
			Text:     f.Text,
			BBox:     model.BBox{X: f.X, Y: f.Y, Width: f.Width, Height: h},
			FontSize: f.FontSize,
			FontName: f.FontName,
		})
	}
	return out
}

func convertTable(t *model.Table, pageHeight float64) types.Table {
	rows := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make([]string, len(r))
		for i, c := range r {
			row[i] = Normalize(c.Text)
		}
		rows = append(rows, row)
	}
	b := t.BBox
	return types.Table{
		Rows: rows,
		BBox: toTopLeft(b.X, b.Y, b.Width, b.Height, pageHeight),
	}
}
