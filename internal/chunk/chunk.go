// Package chunk partitions a Document into token-bounded Chunks without
// splitting blocks.
package chunk

import (
	"log/slog"
	"unicode/utf8"

	"github.com/jackzampolin/reportsum/internal/types"
)

const (
	// DefaultBudget is the per-chunk token ceiling used when none is set.
	DefaultBudget = 6000

	// charsPerToken approximates English prose under common BPE tokenizers.
	charsPerToken = 4

	// rowOverhead accounts for the pipe delimiters and newline per table row.
	rowOverhead = 2
)

// EstimateTokens returns the approximate token cost of a block as rendered
// for the model. It is a character-count heuristic, not tokenizer parity.
func EstimateTokens(b types.Block) int {
	n := utf8.RuneCountInString(b.Render())
	est := (n + charsPerToken - 1) / charsPerToken
	if b.Kind == types.BlockTable {
		est += rowOverhead * len(b.Rows)
	}
	return est
}

// Chunker splits documents by greedy accumulation.
type Chunker struct {
	Budget int
	Logger *slog.Logger
}

// New returns a Chunker with the given budget. A non-positive budget falls
// back to DefaultBudget.
func New(budget int, logger *slog.Logger) *Chunker {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{Budget: budget, Logger: logger}
}

// Split walks the document's blocks in order and emits chunks whose
// estimated cost stays within the budget. A block that alone exceeds the
// budget is emitted as its own chunk and logged. Oversized reports the
// indexes of such chunks.
func (c *Chunker) Split(doc *types.Document) (chunks []types.Chunk, oversized []int) {
	budget := c.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cur types.Chunk
	closeCurrent := func() {
		if len(cur.Blocks) == 0 {
			return
		}
		cur.Index = len(chunks)
		chunks = append(chunks, cur)
		cur = types.Chunk{}
	}

	for _, pb := range doc.Blocks() {
		cost := EstimateTokens(pb.Block)
		if cost > budget {
			closeCurrent()
			logger.Warn("block exceeds chunk budget, placing alone",
				"source", doc.SourceID,
				"page", pb.Page,
				"sequence_index", pb.Block.SequenceIndex,
				"kind", pb.Block.Kind,
				"estimated_tokens", cost,
				"budget", budget)
			cur = types.Chunk{Blocks: []types.PlacedBlock{pb}, EstimatedTokens: cost}
			oversized = append(oversized, len(chunks))
			closeCurrent()
			continue
		}
		if cur.EstimatedTokens+cost > budget {
			closeCurrent()
		}
		cur.Blocks = append(cur.Blocks, pb)
		cur.EstimatedTokens += cost
	}
	closeCurrent()
	return chunks, oversized
}
