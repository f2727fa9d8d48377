package domain

import (
	"fmt"
	"strings"
)

// KeyPrefix namespaces every key this service writes to the store.
const KeyPrefix = "ragdex:"

// Metadata identifies where a chunk came from within its source document.
// Position is the 0-based ordinal of the chunk within a single chunking pass;
// together with Source it forms the stable part of the chunk's identity.
type Metadata struct {
	Source   string
	Title    string
	Section  string
	Position int
}

// Chunk is a contiguous, token-bounded span of a source document,
// the unit of indexing and retrieval.
type Chunk struct {
	Text string
	Meta Metadata
}

// ID returns the storage identity of the chunk. Re-ingesting a source
// produces the same IDs for the same positions, so writes are upserts.
func (c Chunk) ID() string {
	source := c.Meta.Source
	if source == "" {
		source = "doc"
	}
	// Colons would collide with the key layout.
	source = strings.ReplaceAll(source, ":", "_")
	return fmt.Sprintf("%s:%d", source, c.Meta.Position)
}

// Candidate is a chunk returned by the vector store for a query,
// carrying the stored vector and the store's similarity score.
type Candidate struct {
	Chunk  Chunk
	Vector []float32
	Score  float64
}

// RankedContext is a candidate annotated with a cross-encoder relevance
// score and, after citation building, its assigned citation number.
type RankedContext struct {
	Chunk     Chunk
	Relevance float64
	CiteNum   int
}
