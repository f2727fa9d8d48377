// Package citation assigns stable, deduplicated citation numbers to the
// final context list and renders the tagged context block handed to the
// language model.
package citation

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Key is the identity tuple used to deduplicate and number source
// references. Missing metadata fields stay zero-valued; numbering never
// fails on partial metadata.
type Key struct {
	Source   string
	Title    string
	Section  string
	Position int
}

// KeyFor derives the citation key from chunk metadata.
func KeyFor(m domain.Metadata) Key {
	return Key{Source: m.Source, Title: m.Title, Section: m.Section, Position: m.Position}
}

// Source is one entry of the user-facing source panel.
type Source struct {
	N        int    `json:"n"`
	Source   string `json:"source"`
	Title    string `json:"title"`
	Section  string `json:"section"`
	Position int    `json:"position"`
	Snippet  string `json:"snippet"`
}

// Result holds the rendered context block, the citation number assigned to
// each input context (parallel to the input), and the deduplicated source
// list ordered by number.
type Result struct {
	Block   string
	Numbers []int
	Sources []Source
}

// Build walks contexts in rank order, assigning the next unused number
// (starting at 1) at each first key encounter; contexts sharing a key reuse
// the number. previewLen bounds source snippets in runes; longer texts are
// truncated with a trailing ellipsis marker.
func Build(contexts []domain.RankedContext, previewLen int) Result {
	numbers := make([]int, len(contexts))
	assigned := make(map[Key]int, len(contexts))
	var sources []Source

	for i, c := range contexts {
		key := KeyFor(c.Chunk.Meta)
		n, ok := assigned[key]
		if !ok {
			n = len(sources) + 1
			assigned[key] = n
			sources = append(sources, Source{
				N:        n,
				Source:   key.Source,
				Title:    key.Title,
				Section:  key.Section,
				Position: key.Position,
				Snippet:  truncate(c.Chunk.Text, previewLen),
			})
		}
		numbers[i] = n
	}

	var b strings.Builder
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", numbers[i], c.Chunk.Text)
	}

	// Assignment in first-encounter order means sources are already
	// sorted by number.
	return Result{Block: b.String(), Numbers: numbers, Sources: sources}
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
