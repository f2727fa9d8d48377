package config

import (
	"os"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Embedding: EmbeddingConfig{
			APIKey: "emb-key",
			Model:  "text-embedding-3-small",
		},
		Rerank: RerankConfig{APIKey: "rr-key"},
		LLM:    LLMConfig{APIKey: "llm-key", Model: "llama-3.1-8b-instant"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"embedding api key", func(c *Config) { c.Embedding.APIKey = "" }},
		{"embedding model", func(c *Config) { c.Embedding.Model = "" }},
		{"rerank api key", func(c *Config) { c.Rerank.APIKey = "" }},
		{"llm api key", func(c *Config) { c.LLM.APIKey = "" }},
		{"llm model", func(c *Config) { c.LLM.Model = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error for missing credential")
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_InvalidBudgetAction(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Budget.Action = "explode"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid budget action")
	}

	expected := `embedding.budget.action must be "warn" or "reject", got "explode"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_TuningBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap ratio 1", func(c *Config) { c.Chunking.OverlapRatio = 1 }},
		{"overlap ratio negative", func(c *Config) { c.Chunking.OverlapRatio = -0.1 }},
		{"min score above 1", func(c *Config) { c.Retrieval.MinScore = 1.5 }},
		{"mmr lambda above 1", func(c *Config) { c.Retrieval.MMRLambda = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestApplyDefaults_RetrievalTuning(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Chunking.SizeTokens != 1000 {
		t.Errorf("chunk_size_tokens = %d, want 1000", cfg.Chunking.SizeTokens)
	}
	if cfg.Chunking.OverlapRatio != 0.12 {
		t.Errorf("overlap_ratio = %g, want 0.12", cfg.Chunking.OverlapRatio)
	}
	if cfg.Retrieval.InitialRecallK != 25 {
		t.Errorf("initial_recall_k = %d, want 25", cfg.Retrieval.InitialRecallK)
	}
	if cfg.Retrieval.MaxContextDocs != 6 {
		t.Errorf("max_context_docs = %d, want 6", cfg.Retrieval.MaxContextDocs)
	}
	if cfg.Retrieval.MinScore != 0.25 {
		t.Errorf("min_score = %g, want 0.25", cfg.Retrieval.MinScore)
	}
	if cfg.Retrieval.MMRLambda != 0.55 {
		t.Errorf("mmr_lambda = %g, want 0.55", cfg.Retrieval.MMRLambda)
	}
	if cfg.Rerank.TopK != 5 {
		t.Errorf("rerank.top_k = %d, want 5", cfg.Rerank.TopK)
	}
	if cfg.Storage.Namespace != "default" {
		t.Errorf("storage.namespace = %q, want %q", cfg.Storage.Namespace, "default")
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("RAGDEX_TEST_KEY", "secret")
	defer os.Unsetenv("RAGDEX_TEST_KEY")

	in := []byte("api_key: ${RAGDEX_TEST_KEY}\nmodel: ${RAGDEX_TEST_MISSING:-fallback}")
	out := string(expandEnvVars(in))

	want := "api_key: secret\nmodel: fallback"
	if out != want {
		t.Errorf("expandEnvVars:\ngot:  %q\nwant: %q", out, want)
	}
}
