package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Reranker scores documents against a query via the Cohere v2 rerank API.
type Reranker struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// Config holds the rerank provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewReranker creates a Cohere rerank client.
func NewReranker(cfg *Config) *Reranker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Reranker{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank returns the topN most relevant documents for the query, ordered
// by descending relevance. Indices refer to positions in docs.
func (r *Reranker) Rerank(
	ctx context.Context, query string, docs []string, topN int,
) ([]domain.RerankResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if topN > len(docs) {
		topN = len(docs)
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: docs,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, r.baseURL+"/v2/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w: %w", err, domain.ErrRerankProviderError)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, parseStatusError(resp.StatusCode, raw)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w: %w", err, domain.ErrRerankProviderError)
	}

	r.logger.Debug("Rerank finished",
		zap.String("model", r.model),
		zap.Int("documents", len(docs)),
		zap.Int("results", len(parsed.Results)),
		zap.Duration("duration", time.Since(start)),
	)

	results := make([]domain.RerankResult, len(parsed.Results))
	for i, item := range parsed.Results {
		if item.Index < 0 || item.Index >= len(docs) {
			return nil, fmt.Errorf(
				"rerank API returned out-of-range index %d: %w",
				item.Index, domain.ErrRerankProviderError)
		}
		results[i] = domain.RerankResult{
			Index:     item.Index,
			Relevance: item.RelevanceScore,
		}
	}

	return results, nil
}

func parseStatusError(status int, body []byte) error {
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("rerank API rate limited: %w", domain.ErrRateLimited)
	}
	return fmt.Errorf("rerank API error %d: %s: %w",
		status, string(body), domain.ErrRerankProviderError)
}
