package chunk

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

// store is the consumer interface for chunk persistence (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements chunk storage and KNN retrieval for the usecase layer.
type Repo struct {
	store     store
	namespace string
	hnsw      HNSWConfig
}

// New creates a chunk repository scoped to a namespace.
func New(s store, namespace string) *Repo {
	return &Repo{store: s, namespace: namespace, hnsw: HNSWConfig{M: 32, EFConstruct: 400}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// EnsureIndex creates the FT index for this namespace if it does not exist.
// vectorDim must match the embedding model's output dimension.
func (r *Repo) EnsureIndex(ctx context.Context, vectorDim int) error {
	idxName := r.indexName()

	exists, err := r.store.IndexExists(ctx, idxName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", idxName, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     idxName,
		Prefixes: []string{r.keyPrefix()},
		Fields: []db.IndexField{
			{Name: "source", Type: db.IndexFieldTag},
			{Name: "title", Type: db.IndexFieldTag},
			{Name: "section", Type: db.IndexFieldTag},
			{Name: "position", Type: db.IndexFieldNumeric},
			{
				Name:              "__vector",
				Alias:             "vector",
				Type:              db.IndexFieldVector,
				VectorDim:         vectorDim,
				VectorAlgo:        db.VectorHNSW,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", idxName, err)
	}
	return nil
}

// Upsert writes chunks with their vectors in one pipelined round-trip.
// Chunk IDs are derived from (source, position), so re-ingesting the same
// document overwrites in place instead of accumulating duplicates.
func (r *Repo) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(chunks))
	for i, c := range chunks {
		items[i] = db.HashSetItem{
			Key:    r.chunkKey(c),
			Fields: buildHashFields(c, vectors[i]),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset chunks: %w", err)
	}
	return nil
}

// Query runs a KNN search and returns candidates with their stored vectors,
// ordered by descending similarity.
func (r *Repo) Query(ctx context.Context, vector []float32, topK int) ([]domain.Candidate, error) {
	q := &db.KNNQuery{
		IndexName: r.indexName(),
		Vector:    vector,
		K:         topK,
		ReturnFields: []string{
			"__content", "__vector", "__vector_score",
			"source", "title", "section", "position",
		},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.namespace, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	candidates := make([]domain.Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		candidates = append(candidates, parseCandidate(entry))
	}
	return candidates, nil
}

// Key layout: ragdex:{namespace}:chunk:{source}:{position}, index ragdex:{namespace}:chunks:idx

func (r *Repo) keyPrefix() string {
	return fmt.Sprintf("%s%s:chunk:", domain.KeyPrefix, r.namespace)
}

func (r *Repo) chunkKey(c domain.Chunk) string {
	return r.keyPrefix() + c.ID()
}

func (r *Repo) indexName() string {
	return fmt.Sprintf("%s%s:chunks:idx", domain.KeyPrefix, r.namespace)
}
