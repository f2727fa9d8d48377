package answer

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Embedder vectorizes the query and, when stored vectors are missing,
// candidate texts in batch.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// ChunkReader retrieves candidates by vector similarity.
type ChunkReader interface {
	Query(ctx context.Context, vector []float32, topK int) ([]domain.Candidate, error)
}

// Reranker scores documents against the query with a cross-encoder.
// Results come back ordered by descending relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]domain.RerankResult, error)
}

// Generator produces the final answer text from a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (domain.GenerationResult, error)
}
