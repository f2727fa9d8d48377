package domain

// RerankResult references one input document by index with its
// cross-encoder relevance score.
type RerankResult struct {
	Index     int
	Relevance float64
}

// GenerationResult carries LLM output text and token usage.
type GenerationResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
