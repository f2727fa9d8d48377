package chunk

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

// --- EnsureIndex ---

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	var gotDef *db.IndexDefinition
	ms.indexExistsFn = func(_ context.Context, name string) (bool, error) {
		if name != "ragdex:default:chunks:idx" {
			t.Errorf("unexpected index name: %s", name)
		}
		return false, nil
	}
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		gotDef = def
		return nil
	}

	if err := repo.EnsureIndex(ctx, 384); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDef == nil {
		t.Fatal("expected CreateIndex to be called")
	}
	if len(gotDef.Prefixes) != 1 || gotDef.Prefixes[0] != "ragdex:default:chunk:" {
		t.Errorf("unexpected prefixes: %v", gotDef.Prefixes)
	}

	var vec *db.IndexField
	for i := range gotDef.Fields {
		if gotDef.Fields[i].Type == db.IndexFieldVector {
			vec = &gotDef.Fields[i]
		}
	}
	if vec == nil {
		t.Fatal("index definition has no vector field")
	}
	if vec.VectorDim != 384 {
		t.Errorf("vector dim = %d, want 384", vec.VectorDim)
	}
	if vec.VectorAlgo != db.VectorHNSW {
		t.Errorf("vector algo = %s, want HNSW", vec.VectorAlgo)
	}
}

func TestEnsureIndex_SkipsWhenPresent(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		t.Fatal("CreateIndex must not be called when index exists")
		return nil
	}

	if err := repo.EnsureIndex(ctx, 384); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndex_ConcurrentCreateLosesRace(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return false, nil }
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return db.ErrIndexExists
	}

	if err := repo.EnsureIndex(ctx, 384); err != nil {
		t.Fatalf("losing the create race must not be an error, got: %v", err)
	}
}

// --- Upsert ---

func TestUpsert_KeysAndFields(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	chunks := []domain.Chunk{
		{Text: "alpha", Meta: domain.Metadata{Source: "guide.md", Title: "Guide", Section: "intro", Position: 0}},
		{Text: "beta", Meta: domain.Metadata{Source: "guide.md", Title: "Guide", Section: "intro", Position: 1}},
	}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	var gotItems []db.HashSetItem
	ms.hsetMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		gotItems = items
		return nil
	}

	if err := repo.Upsert(ctx, chunks, vectors); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotItems) != 2 {
		t.Fatalf("expected 2 items, got %d", len(gotItems))
	}

	if gotItems[0].Key != "ragdex:default:chunk:guide.md:0" {
		t.Errorf("unexpected key: %s", gotItems[0].Key)
	}
	if gotItems[1].Key != "ragdex:default:chunk:guide.md:1" {
		t.Errorf("unexpected key: %s", gotItems[1].Key)
	}

	fields := gotItems[0].Fields
	if fields["__content"] != "alpha" {
		t.Errorf("__content = %q", fields["__content"])
	}
	if fields["source"] != "guide.md" || fields["position"] != "0" {
		t.Errorf("metadata fields wrong: %v", fields)
	}
	if got := bytesToVector(fields["__vector"]); len(got) != 2 || got[0] != 0.1 {
		t.Errorf("vector round-trip failed: %v", got)
	}
}

func TestUpsert_LengthMismatch(t *testing.T) {
	repo, _ := newTestRepo(t)

	err := repo.Upsert(context.Background(), []domain.Chunk{{Text: "a"}}, nil)
	if err == nil {
		t.Fatal("expected error on chunks/vectors length mismatch")
	}
}

func TestUpsert_Empty(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.hsetMultiFn = func(_ context.Context, _ []db.HashSetItem) error {
		t.Fatal("HSetMulti must not be called for empty input")
		return nil
	}

	if err := repo.Upsert(context.Background(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpsert_StoreError(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.hsetMultiFn = func(_ context.Context, _ []db.HashSetItem) error {
		return errors.New("OOM")
	}

	err := repo.Upsert(context.Background(),
		[]domain.Chunk{{Text: "a"}}, [][]float32{{0.1}})
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
}

// --- Query ---

func TestQuery_ParsesCandidates(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.IndexName != "ragdex:default:chunks:idx" {
			t.Errorf("unexpected index: %s", q.IndexName)
		}
		if q.K != 25 {
			t.Errorf("unexpected k: %d", q.K)
		}
		return &db.SearchResult{
			Total: 1,
			Entries: []db.SearchEntry{
				{
					Key:   "ragdex:default:chunk:guide.md:3",
					Score: 0.91,
					Fields: map[string]string{
						"__content": "chunk text",
						"__vector":  vectorToBytes([]float32{0.5, 0.6}),
						"source":    "guide.md",
						"title":     "Guide",
						"section":   "usage",
						"position":  "3",
					},
				},
			},
		}, nil
	}

	got, err := repo.Query(ctx, []float32{0.1, 0.2}, 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}

	c := got[0]
	if c.Chunk.Text != "chunk text" {
		t.Errorf("text = %q", c.Chunk.Text)
	}
	if c.Chunk.Meta.Source != "guide.md" || c.Chunk.Meta.Position != 3 {
		t.Errorf("metadata = %+v", c.Chunk.Meta)
	}
	if c.Score != 0.91 {
		t.Errorf("score = %v", c.Score)
	}
	if len(c.Vector) != 2 || c.Vector[0] != 0.5 {
		t.Errorf("vector = %v", c.Vector)
	}
}

func TestQuery_NoHits(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.searchKNNFn = func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
		return &db.SearchResult{}, nil
	}

	got, err := repo.Query(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestQuery_StoreError(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.searchKNNFn = func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
		return nil, errors.New("index broken")
	}

	if _, err := repo.Query(context.Background(), []float32{0.1}, 5); err == nil {
		t.Fatal("expected search error to propagate")
	}
}
