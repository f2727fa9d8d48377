package domain

import "errors"

// Sentinel errors shared between layers.
var (
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRateLimited signals a rate limit hit on an external provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRerankProviderError signals a reranker provider failure.
	ErrRerankProviderError = errors.New("rerank provider error")
	// ErrLLMProviderError signals a language model provider failure.
	ErrLLMProviderError = errors.New("llm provider error")
)
