// Package chunker splits raw document text into overlapping, token-bounded
// segments suitable for embedding and retrieval.
package chunker

import (
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Chunker produces sliding-window chunks over whitespace tokens.
// Token counting is approximate: whitespace tokens, not provider tokens.
// Chunk boundaries only need to cover the input, not match billing exactly.
type Chunker struct {
	size    int // tokens per chunk
	overlap int // trailing tokens repeated from the previous chunk
}

// New creates a chunker. overlapRatio is clamped to [0,1); the overlap
// token count is floor(overlapRatio*sizeTokens).
func New(sizeTokens int, overlapRatio float64) *Chunker {
	if sizeTokens <= 0 {
		sizeTokens = 1000
	}
	if overlapRatio < 0 || overlapRatio >= 1 {
		overlapRatio = 0
	}
	return &Chunker{
		size:    sizeTokens,
		overlap: int(overlapRatio * float64(sizeTokens)),
	}
}

// Chunk splits text into ordered chunks covering the whole input.
// Each chunk after the first repeats the previous chunk's trailing overlap
// tokens. Position is the 0-based index of the chunk within this call.
// Empty or whitespace-only input yields zero chunks.
func (c *Chunker) Chunk(text string, meta domain.Metadata) []domain.Chunk {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.size - c.overlap
	if step < 1 {
		step = 1
	}

	var chunks []domain.Chunk
	for start, pos := 0, 0; start < len(tokens); pos++ {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}

		m := meta
		m.Position = pos
		chunks = append(chunks, domain.Chunk{
			Text: strings.Join(tokens[start:end], " "),
			Meta: m,
		})

		if end == len(tokens) {
			break
		}
		start += step
	}

	return chunks
}

// Size returns the configured chunk size in tokens.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap size in tokens.
func (c *Chunker) Overlap() int { return c.overlap }
