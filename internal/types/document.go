package types

import (
	"strconv"
	"strings"
)

// BlockKind selects the variant of a Block.
type BlockKind string

const (
	BlockText  BlockKind = "text"
	BlockTable BlockKind = "table"
)

// Block is the atomic unit of document content. It is a closed tagged
// union: Text is set for BlockText, Rows for BlockTable.
type Block struct {
	Kind          BlockKind  `json:"kind"`
	SequenceIndex int        `json:"sequence_index"`
	BBox          BBox       `json:"bbox"`
	Text          string     `json:"text,omitempty"`
	Rows          [][]string `json:"rows,omitempty"`
}

// NewTextBlock creates a text block.
func NewTextBlock(text string, box BBox) Block {
	return Block{Kind: BlockText, BBox: box, Text: text}
}

// NewTableBlock creates a table block. Rows shorter than the widest row
// are padded with empty cells so the grid is rectangular.
func NewTableBlock(rows [][]string, box BBox) Block {
	return Block{Kind: BlockTable, BBox: box, Rows: PadRows(rows)}
}

// PadRows returns a copy of rows with every row extended to the maximum
// observed width.
func PadRows(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		padded := make([]string, width)
		copy(padded, r)
		out[i] = padded
	}
	return out
}

// Render returns the block as plain text for model input. Tables render as
// pipe-delimited rows.
func (b Block) Render() string {
	switch b.Kind {
	case BlockTable:
		var sb strings.Builder
		for i, row := range b.Rows {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString("| ")
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteString(" |")
		}
		return sb.String()
	default:
		return b.Text
	}
}

// Page is one page of a Document. Blocks are in reading order with
// strictly increasing SequenceIndex.
type Page struct {
	Index  int     `json:"index"`
	Blocks []Block `json:"blocks"`
}

// Document is the merged representation of one source file. It is built
// once by the merger and not mutated afterwards.
type Document struct {
	SourceID string `json:"source_id"`
	Pages    []Page `json:"pages"`
}

// PlacedBlock is a Block together with the page it came from.
type PlacedBlock struct {
	Page  int   `json:"page"`
	Block Block `json:"block"`
}

// Blocks returns every block in document order: page order, then block order.
func (d *Document) Blocks() []PlacedBlock {
	var out []PlacedBlock
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			out = append(out, PlacedBlock{Page: p.Index, Block: b})
		}
	}
	return out
}

// BlockCount returns the total number of blocks across all pages.
func (d *Document) BlockCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Blocks)
	}
	return n
}

// Chunk is a budget-bounded run of whole blocks sent to the model together.
type Chunk struct {
	Index           int           `json:"chunk_index"`
	Blocks          []PlacedBlock `json:"blocks"`
	EstimatedTokens int           `json:"estimated_token_count"`
}

// Render returns the chunk content as model input, with a page marker
// whenever the page changes.
func (c Chunk) Render() string {
	var sb strings.Builder
	page := -1
	for _, pb := range c.Blocks {
		if pb.Page != page {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString("[page ")
			sb.WriteString(strconv.Itoa(pb.Page + 1))
			sb.WriteString("]\n")
			page = pb.Page
		} else {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pb.Block.Render())
	}
	return sb.String()
}

// Pages returns the distinct page indexes covered by the chunk, in order.
func (c Chunk) Pages() []int {
	var pages []int
	for _, pb := range c.Blocks {
		if len(pages) == 0 || pages[len(pages)-1] != pb.Page {
			pages = append(pages, pb.Page)
		}
	}
	return pages
}
