package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragdex API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	LLM       LLMConfig       `yaml:"llm"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds vector store key layout and index settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
	Namespace string `yaml:"namespace"`
	HNSWM     int    `yaml:"hnsw_m"`
	HNSWEF    int    `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"`
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	Model               string       `yaml:"model"`
	Dimensions          int          `yaml:"dimensions"`
	DocumentInstruction string       `yaml:"document_instruction"`
	QueryInstruction    string       `yaml:"query_instruction"`
	Budget              BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// RerankConfig holds cross-encoder reranker settings.
type RerankConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TopK       int    `yaml:"top_k"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// LLMConfig holds answer-composition model settings.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ChunkingConfig holds document chunking settings.
type ChunkingConfig struct {
	SizeTokens   int     `yaml:"chunk_size_tokens"`
	OverlapRatio float64 `yaml:"overlap_ratio"`
}

// RetrievalConfig holds retrieval and ranking settings.
type RetrievalConfig struct {
	InitialRecallK int     `yaml:"initial_recall_k"`
	MaxContextDocs int     `yaml:"max_context_docs"`
	MinScore       float64 `yaml:"min_score"`
	MMRLambda      float64 `yaml:"mmr_lambda"`
	MMRPoolK       int     `yaml:"mmr_pool_k"`
	SnippetLength  int     `yaml:"snippet_length"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// LLM calls ride on this timeout, so it is generous by default.
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "ragdex:"
	}
	if c.Storage.Namespace == "" {
		c.Storage.Namespace = "default"
	}
	if c.Storage.HNSWM <= 0 {
		c.Storage.HNSWM = 32
	}
	if c.Storage.HNSWEF <= 0 {
		c.Storage.HNSWEF = 400
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Rerank.TopK <= 0 {
		c.Rerank.TopK = 5
	}
	if c.Rerank.TimeoutSec <= 0 {
		c.Rerank.TimeoutSec = 30
	}
	if c.Rerank.BaseURL == "" {
		c.Rerank.BaseURL = "https://api.cohere.com"
	}
	if c.Rerank.Model == "" {
		c.Rerank.Model = "rerank-v3.5"
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 600
	}
	if c.Chunking.SizeTokens <= 0 {
		c.Chunking.SizeTokens = 1000
	}
	if c.Chunking.OverlapRatio <= 0 {
		c.Chunking.OverlapRatio = 0.12
	}
	if c.Retrieval.InitialRecallK <= 0 {
		c.Retrieval.InitialRecallK = 25
	}
	if c.Retrieval.MaxContextDocs <= 0 {
		c.Retrieval.MaxContextDocs = 6
	}
	if c.Retrieval.MinScore <= 0 {
		c.Retrieval.MinScore = 0.25
	}
	if c.Retrieval.MMRLambda <= 0 {
		c.Retrieval.MMRLambda = 0.55
	}
	if c.Retrieval.MMRPoolK <= 0 {
		c.Retrieval.MMRPoolK = 12
	}
	if c.Retrieval.SnippetLength <= 0 {
		c.Retrieval.SnippetLength = 300
	}
}

// Validate checks the configuration for correctness.
// Missing credentials fail here, at startup, not at first request.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Rerank.APIKey == "" {
		return fmt.Errorf("rerank.api_key is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action,
		)
	}
	if c.Chunking.OverlapRatio < 0 || c.Chunking.OverlapRatio >= 1 {
		return fmt.Errorf("chunking.overlap_ratio must be in [0,1), got %g", c.Chunking.OverlapRatio)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval.min_score must be in [0,1], got %g", c.Retrieval.MinScore)
	}
	if c.Retrieval.MMRLambda < 0 || c.Retrieval.MMRLambda > 1 {
		return fmt.Errorf("retrieval.mmr_lambda must be in [0,1], got %g", c.Retrieval.MMRLambda)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
