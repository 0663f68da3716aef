// Package merge reconciles text runs and detected tables into one ordered
// Document of typed blocks per page.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackzampolin/reportsum/internal/types"
)

// DefaultContainmentThreshold is the fraction of a text run's area that
// must fall inside a table region for the run to be suppressed.
const DefaultContainmentThreshold = 0.5

// AnomalyKind classifies non-fatal merge findings.
type AnomalyKind string

const (
	// AnomalyEmptyPage means a page produced no blocks after suppression.
	AnomalyEmptyPage AnomalyKind = "EmptyPage"
	// AnomalyPageMismatch means the extractors disagree on a page's presence.
	AnomalyPageMismatch AnomalyKind = "PageMismatch"
)

// Anomaly is a non-fatal merge finding. It never fails a task; it is
// surfaced in the summary metadata.
type Anomaly struct {
	Page    int         `json:"page"`
	Kind    AnomalyKind `json:"kind"`
	Message string      `json:"message"`
}

func (a Anomaly) String() string {
	return fmt.Sprintf("page %d: %s: %s", a.Page+1, a.Kind, a.Message)
}

// Merger builds Documents from extractor output.
type Merger struct {
	// Threshold overrides DefaultContainmentThreshold when > 0.
	Threshold float64
}

// Merge combines per-page text runs and tables into a Document. Pages are
// keyed by index; a page present in only one input is still emitted.
func (m *Merger) Merge(sourceID string, text []types.PageText, tables []types.PageTables) (*types.Document, []Anomaly) {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultContainmentThreshold
	}

	runsByPage := make(map[int][]types.TextRun, len(text))
	tablesByPage := make(map[int][]types.Table, len(tables))
	inText := make(map[int]bool, len(text))
	inTables := make(map[int]bool, len(tables))
	indexes := make(map[int]struct{})
	for _, p := range text {
		runsByPage[p.Index] = append(runsByPage[p.Index], p.Runs...)
		inText[p.Index] = true
		indexes[p.Index] = struct{}{}
	}
	for _, p := range tables {
		tablesByPage[p.Index] = append(tablesByPage[p.Index], p.Tables...)
		inTables[p.Index] = true
		indexes[p.Index] = struct{}{}
	}

	order := make([]int, 0, len(indexes))
	for idx := range indexes {
		order = append(order, idx)
	}
	sort.Ints(order)

	var anomalies []Anomaly
	doc := &types.Document{SourceID: sourceID, Pages: make([]types.Page, 0, len(order))}
	for _, idx := range order {
		if len(text) > 0 && len(tables) > 0 && inText[idx] != inTables[idx] {
			anomalies = append(anomalies, Anomaly{
				Page:    idx,
				Kind:    AnomalyPageMismatch,
				Message: "page reported by only one extractor",
			})
		}
		page := mergePage(idx, runsByPage[idx], tablesByPage[idx], threshold)
		if len(page.Blocks) == 0 {
			anomalies = append(anomalies, Anomaly{
				Page:    idx,
				Kind:    AnomalyEmptyPage,
				Message: "no extractable text or tables",
			})
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, anomalies
}

// item is a positioned candidate block before coalescing.
type item struct {
	box   types.BBox
	table *types.Table
	text  string
}

func mergePage(idx int, runs []types.TextRun, tables []types.Table, threshold float64) types.Page {
	items := make([]item, 0, len(runs)+len(tables))
	for i := range tables {
		items = append(items, item{box: tables[i].BBox, table: &tables[i]})
	}
	for _, r := range runs {
		t := strings.TrimSpace(r.Text)
		if t == "" || suppressed(r.BBox, tables, threshold) {
			continue
		}
		items = append(items, item{box: r.BBox, text: t})
	}

	// Top to bottom, then left to right; tables win exact ties so their
	// content is read before any overlapping prose.
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.box.Y != b.box.Y {
			return a.box.Y < b.box.Y
		}
		if a.box.X != b.box.X {
			return a.box.X < b.box.X
		}
		return a.table != nil && b.table == nil
	})

	page := types.Page{Index: idx, Blocks: make([]types.Block, 0, len(items))}
	var pending []string
	var pendingBox types.BBox
	flush := func() {
		if len(pending) == 0 {
			return
		}
		page.Blocks = append(page.Blocks, types.NewTextBlock(strings.Join(pending, "\n"), pendingBox))
		pending = nil
		pendingBox = types.BBox{}
	}
	for _, it := range items {
		if it.table != nil {
			flush()
			page.Blocks = append(page.Blocks, types.NewTableBlock(it.table.Rows, it.box))
			continue
		}
		pending = append(pending, it.text)
		pendingBox = pendingBox.Union(it.box)
	}
	flush()

	for i := range page.Blocks {
		page.Blocks[i].SequenceIndex = i
	}
	return page
}

func suppressed(run types.BBox, tables []types.Table, threshold float64) bool {
	for _, t := range tables {
		if run.ContainedFraction(t.BBox) > threshold {
			return true
		}
	}
	return false
}
