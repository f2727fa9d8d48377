package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Request is a document submitted for indexing.
type Request struct {
	Source  string
	Title   string
	Section string
	Text    string
}

// Result reports what a single ingestion produced.
type Result struct {
	Source string
	Chunks int
	Tokens int
}

// Service turns documents into indexed chunks: split, vectorize, store.
type Service struct {
	chunker     Chunker
	embedder    Embedder
	repo        ChunkWriter
	expectedDim int
	logger      *zap.Logger
}

// New creates an ingest service. expectedDim of 0 disables the dimension check.
func New(chunker Chunker, embedder Embedder, repo ChunkWriter, expectedDim int, logger *zap.Logger) *Service {
	return &Service{
		chunker:     chunker,
		embedder:    embedder,
		repo:        repo,
		expectedDim: expectedDim,
		logger:      logger,
	}
}

// Ingest chunks the document, embeds every chunk in one batch call, and
// upserts the results. Empty or whitespace-only text yields zero chunks and
// performs no embedding or storage calls.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	meta := domain.Metadata{
		Source:  req.Source,
		Title:   req.Title,
		Section: req.Section,
	}

	chunks := s.chunker.Chunk(req.Text, meta)
	if len(chunks) == 0 {
		s.logger.Debug("Document produced no chunks", zap.String("source", req.Source))
		return Result{Source: req.Source}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embRes, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks: %w", err)
	}

	if usage := domain.UsageFromContext(ctx); usage != nil {
		usage.AddTokens(embRes.TotalTokens)
	}

	if len(embRes.Embeddings) != len(chunks) {
		return Result{}, fmt.Errorf(
			"embedder returned %d vectors for %d chunks", len(embRes.Embeddings), len(chunks))
	}
	if err := s.checkDims(embRes.Embeddings); err != nil {
		return Result{}, err
	}

	if err := s.repo.Upsert(ctx, chunks, embRes.Embeddings); err != nil {
		return Result{}, fmt.Errorf("store chunks: %w", err)
	}

	s.logger.Info("Document ingested",
		zap.String("source", req.Source),
		zap.Int("chunks", len(chunks)),
		zap.Int("tokens", embRes.TotalTokens),
	)

	return Result{
		Source: req.Source,
		Chunks: len(chunks),
		Tokens: embRes.TotalTokens,
	}, nil
}

func (s *Service) checkDims(vectors [][]float32) error {
	if s.expectedDim <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != s.expectedDim {
			return fmt.Errorf("chunk %d: got dim %d, want %d: %w",
				i, len(v), s.expectedDim, domain.ErrVectorDimMismatch)
		}
	}
	return nil
}
