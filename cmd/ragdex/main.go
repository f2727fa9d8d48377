package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/db"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunker"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/ragdex/internal/repository/budget"
	chunkrepo "github.com/kailas-cloud/ragdex/internal/repository/chunk"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/ragdex/internal/transport/chi"
	"github.com/kailas-cloud/ragdex/internal/transport/cohere"
	openaiTransport "github.com/kailas-cloud/ragdex/internal/transport/openai"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
	"github.com/kailas-cloud/ragdex/internal/version"
)

func main() {
	// Secrets for local runs come from .env; absence is fine elsewhere.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	// Single BudgetTracker shared across all embedders and usage service.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			cfg.Embedding.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		// Connect persistence store, loading current counters from DB.
		budgetStore := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
		budget.WithStore(ctx, budgetStore)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	docEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.DocumentInstruction, store, budgetChecker, logger)
	queryEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.QueryInstruction, store, budgetChecker, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	chunkRepo := chunkrepo.New(store, cfg.Storage.Namespace).WithHNSW(chunkrepo.HNSWConfig{
		M:           cfg.Storage.HNSWM,
		EFConstruct: cfg.Storage.HNSWEF,
	})
	if cfg.Embedding.Dimensions > 0 {
		if err := chunkRepo.EnsureIndex(ctx, cfg.Embedding.Dimensions); err != nil {
			logger.Fatal("Failed to ensure vector index", zap.Error(err))
		}
		logger.Info("Vector index ready", zap.Int("dimensions", cfg.Embedding.Dimensions))
	}

	reranker := cohere.NewReranker(&cohere.Config{
		APIKey:  cfg.Rerank.APIKey,
		BaseURL: cfg.Rerank.BaseURL,
		Model:   cfg.Rerank.Model,
		Timeout: time.Duration(cfg.Rerank.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger,
	})

	splitter := chunker.New(cfg.Chunking.SizeTokens, cfg.Chunking.OverlapRatio)

	ingestSvc := ingestuc.New(splitter, docEmbedder, chunkRepo, cfg.Embedding.Dimensions, logger)
	answerSvc := answeruc.New(queryEmbedder, chunkRepo, reranker, generator, answeruc.Options{
		InitialRecallK: cfg.Retrieval.InitialRecallK,
		MinScore:       cfg.Retrieval.MinScore,
		MMRLambda:      cfg.Retrieval.MMRLambda,
		MMRPoolK:       cfg.Retrieval.MMRPoolK,
		RerankTopK:     cfg.Rerank.TopK,
		MaxContextDocs: cfg.Retrieval.MaxContextDocs,
		SnippetLength:  cfg.Retrieval.SnippetLength,
	}, logger)

	// Usage service reads from the shared BudgetTracker.
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	usageSvc := usageuc.New(budgetReader)

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(docEmbedder))

	server := chiTransport.NewServer(ingestSvc, answerSvc, usageSvc, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// embedderChain is what the ingest and answer services need from the
// assembled decorator stack.
type embedderChain interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	embCfg config.EmbeddingConfig,
	instruction string,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) embedderChain {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Provider:   embCfg.Provider,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (budget + metrics)
	instrumented := embeddinguc.NewInstrumentedEmbedder(
		embedder, embCfg.Provider, embCfg.Model, budget, logger,
	)

	// Instruction prefix outermost so the cache key includes it
	if instruction != "" {
		return domain.NewInstructionEmbedder(instrumented, instruction)
	}

	return instrumented
}
