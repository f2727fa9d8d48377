package ingest

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Chunker splits document text into indexable chunks.
type Chunker interface {
	Chunk(text string, meta domain.Metadata) []domain.Chunk
}

// Embedder vectorizes chunk texts in batch.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// ChunkWriter persists chunks with their vectors.
type ChunkWriter interface {
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
}
