package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/citation"
	"github.com/kailas-cloud/ragdex/internal/domain/mmr"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// SystemPrompt instructs the model to answer only from the provided context.
const SystemPrompt = `You are a precise, citation-first assistant.
Use only the provided context. If unsure, say you don't know.
Cite sources inline like [1], [2] corresponding to the provided context chunks.
Keep answers concise and factual.`

// NoContextAnswer is the fixed response when retrieval yields nothing usable.
const NoContextAnswer = "I couldn't find enough information in your documents to answer that confidently."

// Options are the retrieval and ranking knobs of the pipeline.
type Options struct {
	InitialRecallK int
	MinScore       float64
	MMRLambda      float64
	MMRPoolK       int
	RerankTopK     int
	MaxContextDocs int
	SnippetLength  int
}

// Context is one context chunk in the response, in final rank order.
type Context struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Title     string  `json:"title"`
	Section   string  `json:"section"`
	Position  int     `json:"position"`
	Relevance float64 `json:"rerank_score"`
	CiteNum   int     `json:"cite_num"`
}

// Response is the complete answer with its supporting evidence.
type Response struct {
	Answer   string            `json:"answer"`
	Contexts []Context         `json:"contexts"`
	Sources  []citation.Source `json:"sources"`
}

// Service runs the answer pipeline:
// retrieve, diversify, rerank, truncate, cite, compose.
type Service struct {
	embedder Embedder
	repo     ChunkReader
	reranker Reranker
	llm      Generator
	opts     Options
	logger   *zap.Logger
}

// New creates an answer service.
func New(
	embedder Embedder, repo ChunkReader, reranker Reranker, llm Generator,
	opts Options, logger *zap.Logger,
) *Service {
	return &Service{
		embedder: embedder,
		repo:     repo,
		reranker: reranker,
		llm:      llm,
		opts:     opts,
		logger:   logger,
	}
}

// Answer resolves a question against the indexed corpus. When no candidate
// survives the score filter it returns the fixed no-context response without
// touching the reranker or the LLM. Collaborator failures surface to the
// caller unchanged.
func (s *Service) Answer(ctx context.Context, query string) (Response, error) {
	retrieveStart := time.Now()

	candidates, queryVec, err := s.retrieve(ctx, query)
	if err != nil {
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		return Response{}, err
	}
	metrics.PipelineStageDuration.WithLabelValues("retrieve").Observe(time.Since(retrieveStart).Seconds())

	if len(candidates) == 0 {
		s.logger.Info("No candidates above score threshold", zap.String("query", query))
		metrics.AnswersTotal.WithLabelValues("no_context").Inc()
		return Response{
			Answer:   NoContextAnswer,
			Contexts: []Context{},
			Sources:  []citation.Source{},
		}, nil
	}

	diversified, err := s.diversify(ctx, queryVec, candidates)
	if err != nil {
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		return Response{}, err
	}

	rerankStart := time.Now()
	ranked, err := s.rerank(ctx, query, diversified)
	if err != nil {
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		return Response{}, err
	}
	metrics.PipelineStageDuration.WithLabelValues("rerank").Observe(time.Since(rerankStart).Seconds())

	if len(ranked) > s.opts.MaxContextDocs {
		ranked = ranked[:s.opts.MaxContextDocs]
	}

	cite := citation.Build(ranked, s.opts.SnippetLength)
	for i := range ranked {
		ranked[i].CiteNum = cite.Numbers[i]
	}

	generateStart := time.Now()
	gen, err := s.compose(ctx, query, cite.Block)
	if err != nil {
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		return Response{}, err
	}
	metrics.PipelineStageDuration.WithLabelValues("generate").Observe(time.Since(generateStart).Seconds())

	metrics.AnswersTotal.WithLabelValues("answered").Inc()

	return Response{
		Answer:   normalizeWhitespace(gen.Text),
		Contexts: toContexts(ranked),
		Sources:  cite.Sources,
	}, nil
}

// retrieve embeds the query and returns KNN candidates at or above MinScore.
// The score filter is applied once, here.
func (s *Service) retrieve(ctx context.Context, query string) ([]domain.Candidate, []float32, error) {
	embRes, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}
	if usage := domain.UsageFromContext(ctx); usage != nil {
		usage.AddTokens(embRes.TotalTokens)
	}

	candidates, err := s.repo.Query(ctx, embRes.Embedding, s.opts.InitialRecallK)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if c.Score >= s.opts.MinScore {
			filtered = append(filtered, c)
		}
	}
	return filtered, embRes.Embedding, nil
}

// diversify applies MMR over candidate vectors and returns the selected
// candidates in selection order. Stored vectors are reused; any candidate
// missing one is re-embedded in a single batch call.
func (s *Service) diversify(ctx context.Context, queryVec []float32, candidates []domain.Candidate) ([]domain.Candidate, error) {
	vectors, err := s.candidateVectors(ctx, candidates)
	if err != nil {
		return nil, err
	}

	pool := s.opts.MMRPoolK
	if pool > len(candidates) {
		pool = len(candidates)
	}

	selected := mmr.Select(queryVec, vectors, pool, s.opts.MMRLambda)

	out := make([]domain.Candidate, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out, nil
}

func (s *Service) candidateVectors(ctx context.Context, candidates []domain.Candidate) ([][]float32, error) {
	vectors := make([][]float32, len(candidates))
	var missIdx []int
	var missTexts []string

	for i, c := range candidates {
		if len(c.Vector) > 0 {
			vectors[i] = c.Vector
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, c.Chunk.Text)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	s.logger.Debug("Re-embedding candidates without stored vectors", zap.Int("count", len(missTexts)))

	res, err := s.embedder.BatchEmbed(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}
	if len(res.Embeddings) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(res.Embeddings), len(missTexts))
	}
	if usage := domain.UsageFromContext(ctx); usage != nil {
		usage.AddTokens(res.TotalTokens)
	}

	for j, i := range missIdx {
		vectors[i] = res.Embeddings[j]
	}
	return vectors, nil
}

// rerank scores the diversified candidates against the query and returns
// ranked contexts in descending relevance.
func (s *Service) rerank(ctx context.Context, query string, diversified []domain.Candidate) ([]domain.RankedContext, error) {
	docs := make([]string, len(diversified))
	for i, c := range diversified {
		docs[i] = c.Chunk.Text
	}

	topN := s.opts.RerankTopK
	if topN > len(docs) {
		topN = len(docs)
	}

	results, err := s.reranker.Rerank(ctx, query, docs, topN)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	ranked := make([]domain.RankedContext, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(diversified) {
			return nil, fmt.Errorf("reranker returned out-of-range index %d for %d docs", r.Index, len(diversified))
		}
		ranked = append(ranked, domain.RankedContext{
			Chunk:     diversified[r.Index].Chunk,
			Relevance: r.Relevance,
		})
	}
	return ranked, nil
}

func (s *Service) compose(ctx context.Context, query, contextBlock string) (domain.GenerationResult, error) {
	user := fmt.Sprintf(
		"Question: %s\n\nContext:\n%s\n\nAnswer with inline citations like [1], [2].",
		query, contextBlock,
	)

	gen, err := s.llm.Generate(ctx, SystemPrompt, user)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("generate answer: %w", err)
	}
	return gen, nil
}

func toContexts(ranked []domain.RankedContext) []Context {
	out := make([]Context, len(ranked))
	for i, r := range ranked {
		out[i] = Context{
			Text:      r.Chunk.Text,
			Source:    r.Chunk.Meta.Source,
			Title:     r.Chunk.Meta.Title,
			Section:   r.Chunk.Meta.Section,
			Position:  r.Chunk.Meta.Position,
			Relevance: r.Relevance,
			CiteNum:   r.CiteNum,
		}
	}
	return out
}

// normalizeWhitespace collapses all whitespace runs to single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
