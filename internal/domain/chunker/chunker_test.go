package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

func tokens(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New(100, 0.1)

	for _, input := range []string{"", "   ", "\n\t  \n"} {
		if got := c.Chunk(input, domain.Metadata{Source: "s"}); got != nil {
			t.Errorf("Chunk(%q) = %d chunks, want 0", input, len(got))
		}
	}
}

func TestChunk_ShortDocumentSingleChunk(t *testing.T) {
	c := New(100, 0.1)

	chunks := c.Chunk("The sky is blue. The grass is green.", domain.Metadata{Source: "t1"})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Meta.Position != 0 {
		t.Errorf("position = %d, want 0", chunks[0].Meta.Position)
	}
	if chunks[0].Text != "The sky is blue. The grass is green." {
		t.Errorf("unexpected chunk text: %q", chunks[0].Text)
	}
}

func TestChunk_PositionsSequential(t *testing.T) {
	c := New(10, 0.2)

	chunks := c.Chunk(tokens(35), domain.Metadata{Source: "doc", Title: "T"})
	for i, ch := range chunks {
		if ch.Meta.Position != i {
			t.Errorf("chunk %d has position %d", i, ch.Meta.Position)
		}
		if ch.Meta.Source != "doc" || ch.Meta.Title != "T" {
			t.Errorf("chunk %d lost source metadata: %+v", i, ch.Meta)
		}
	}
}

func TestChunk_Overlap(t *testing.T) {
	c := New(10, 0.2) // overlap = 2 tokens

	chunks := c.Chunk(tokens(30), domain.Metadata{})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)
		tail := prev[len(prev)-2:]
		head := cur[:2]
		for j := range tail {
			if tail[j] != head[j] {
				t.Errorf("chunk %d does not start with previous chunk's tail: %v vs %v", i, tail, head)
			}
		}
	}
}

// Coverage: de-overlapped concatenation reconstructs the token sequence.
func TestChunk_Coverage(t *testing.T) {
	tests := []struct {
		total, size int
		ratio       float64
	}{
		{100, 10, 0.2},
		{100, 10, 0},
		{1, 10, 0.5},
		{10, 10, 0.12},
		{11, 10, 0.12},
		{997, 100, 0.12},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("total=%d size=%d ratio=%g", tt.total, tt.size, tt.ratio), func(t *testing.T) {
			c := New(tt.size, tt.ratio)
			src := tokens(tt.total)
			chunks := c.Chunk(src, domain.Metadata{})

			var rebuilt []string
			for i, ch := range chunks {
				toks := strings.Fields(ch.Text)
				if i > 0 {
					toks = toks[c.Overlap():]
				}
				rebuilt = append(rebuilt, toks...)
			}

			if got := strings.Join(rebuilt, " "); got != src {
				t.Errorf("coverage broken: rebuilt %d tokens from %d", len(rebuilt), tt.total)
			}

			// Chunk count stays near ceil(total/(size-overlap)).
			step := tt.size - c.Overlap()
			want := (tt.total + step - 1) / step
			if len(chunks) < want-1 || len(chunks) > want+1 {
				t.Errorf("chunk count = %d, want ~%d", len(chunks), want)
			}
		})
	}
}

func TestChunk_IDUpsertStable(t *testing.T) {
	c := New(10, 0.2)
	meta := domain.Metadata{Source: "report.pdf"}

	first := c.Chunk(tokens(25), meta)
	second := c.Chunk(tokens(25), meta)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID() != second[i].ID() {
			t.Errorf("chunk %d id changed across ingestions: %s vs %s", i, first[i].ID(), second[i].ID())
		}
	}
}
