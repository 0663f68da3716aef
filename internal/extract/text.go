package extract

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/text"

	"github.com/jackzampolin/reportsum/internal/types"
)

// TextSource yields positioned text runs per page.
type TextSource interface {
	ExtractText(ctx context.Context, path string) ([]types.PageText, error)
}

// TableSource yields detected tables per page.
type TableSource interface {
	ExtractTables(ctx context.Context, path string) ([]types.PageTables, error)
}

// TextExtractor reads the PDF text layer with tabula and groups glyph
// fragments into layout lines. Each call opens its own reader, so one
// extractor may serve concurrent calls on the same file.
type TextExtractor struct {
	Logger *slog.Logger
}

var _ TextSource = (*TextExtractor)(nil)

// NewTextExtractor creates a text extractor.
func NewTextExtractor(logger *slog.Logger) *TextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{Logger: logger}
}

// ExtractText returns one PageText per page, in page order.
func (e *TextExtractor) ExtractText(ctx context.Context, path string) ([]types.PageText, error) {
	var out []types.PageText
	err := eachPage(ctx, path, func(idx int, pg pageData) error {
		out = append(out, types.PageText{
			Index:  idx,
			Width:  pg.width,
			Height: pg.height,
			Runs:   groupLines(pg.fragments, pg.height),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.Logger.Debug("text extracted", "path", path, "pages", len(out))
	return out, nil
}

type pageData struct {
	width, height float64
	fragments     []text.TextFragment
}

// eachPage opens path with tabula and calls fn for every page. Open and
// structural errors are CorruptInput; ctx is checked between pages.
func eachPage(ctx context.Context, path string, fn func(idx int, pg pageData) error) error {
	r, err := reader.Open(path)
	if err != nil {
		return corrupt(path, err)
	}
	defer r.Close()

	if r.Trailer().Get("Encrypt") != nil {
		return corrupt(path, ErrEncrypted)
	}

	count, err := r.PageCount()
	if err != nil {
		return corrupt(path, fmt.Errorf("failed to read page tree: %w", err))
	}

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.GetPage(i)
		if err != nil {
			return corrupt(path, fmt.Errorf("failed to load page %d: %w", i+1, err))
		}
		width, err := page.Width()
		if err != nil {
			return corrupt(path, fmt.Errorf("page %d: %w", i+1, err))
		}
		height, err := page.Height()
		if err != nil {
			return corrupt(path, fmt.Errorf("page %d: %w", i+1, err))
		}
		fragments, err := r.ExtractTextFragments(page)
		if err != nil {
			return corrupt(path, fmt.Errorf("page %d: %w", i+1, err))
		}
		if err := fn(i, pageData{width: width, height: height, fragments: fragments}); err != nil {
			return err
		}
	}
	return nil
}

// toTopLeft converts a PDF-space rectangle (origin bottom-left) to page
// space with the origin at the top-left.
func toTopLeft(x, y, w, h, pageHeight float64) types.BBox {
	return types.BBox{X: x, Y: pageHeight - (y + h), Width: w, Height: h}
}

// groupLines merges fragments sharing a baseline into one run per line.
func groupLines(fragments []text.TextFragment, pageHeight float64) []types.TextRun {
	frags := make([]text.TextFragment, 0, len(fragments))
	for _, f := range fragments {
		if strings.TrimSpace(f.Text) != "" {
			frags = append(frags, f)
		}
	}
	if len(frags) == 0 {
		return nil
	}

	// Top of page first, then left to right.
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Y != frags[j].Y {
			return frags[i].Y > frags[j].Y
		}
		return frags[i].X < frags[j].X
	})

	var runs []types.TextRun
	var line []text.TextFragment
	flush := func() {
		if len(line) == 0 {
			return
		}
		runs = append(runs, buildRun(line, pageHeight))
		line = line[:0]
	}
	for _, f := range frags {
		if len(line) > 0 && math.Abs(line[0].Y-f.Y) > lineTolerance(line[0], f) {
			flush()
		}
		line = append(line, f)
	}
	flush()

	out := runs[:0]
	for _, r := range runs {
		if r.Text != "" {
			out = append(out, r)
		}
	}
	return out
}

func lineTolerance(a, b text.TextFragment) float64 {
	size := max(a.FontSize, b.FontSize, a.Height, b.Height)
	if size <= 0 {
		return 2
	}
	return size * 0.4
}

func buildRun(line []text.TextFragment, pageHeight float64) types.TextRun {
	sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })

	var sb strings.Builder
	var box types.BBox
	prevRight := math.Inf(-1)
	for _, f := range line {
		h := f.Height
		if h <= 0 {
			h = f.FontSize
		}
		if sb.Len() > 0 {
			gap := f.X - prevRight
			if gap > max(f.FontSize, 1)*0.15 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(f.Text)
		prevRight = f.X + f.Width
		box = box.Union(toTopLeft(f.X, f.Y, f.Width, h, pageHeight))
	}
	return types.TextRun{Text: Normalize(sb.String()), BBox: box}
}

// Normalize collapses repeated whitespace, strips form feeds and trims.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\f", "")
	return strings.Join(strings.Fields(s), " ")
}
