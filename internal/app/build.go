package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/antoniostano/finchat/internal/agents"
	"github.com/antoniostano/finchat/internal/analytics"
	"github.com/antoniostano/finchat/internal/chat"
	"github.com/antoniostano/finchat/internal/config"
	"github.com/antoniostano/finchat/internal/httpapi"
	"github.com/antoniostano/finchat/internal/insights"
	"github.com/antoniostano/finchat/internal/llm"
	"github.com/antoniostano/finchat/internal/memory"
	"github.com/antoniostano/finchat/internal/observability"
	"github.com/antoniostano/finchat/internal/routing"
	"github.com/antoniostano/finchat/internal/snapshot"
	"github.com/antoniostano/finchat/internal/txparse"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *chat.Orchestrator
	Compactor    *memory.Compactor
	Sweeper      *memory.Sweeper
	Metrics      *observability.Metrics
	// LLMMode is the resolved backend ("gemini" or "mock").
	LLMMode   string
	StoreMode string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	var pool *pgxpool.Pool
	storeMode := "in-memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		p, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool init failed: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("postgres ping failed: %w", err)
		}
		pool = p
		storeMode = "postgres"
	}
	closePool := func() {
		if pool != nil {
			pool.Close()
		}
	}

	snapshotStore, err := snapshot.NewStore(ctx, pool)
	if err != nil {
		closePool()
		return nil, fmt.Errorf("snapshot store init failed: %w", err)
	}
	turnStore, err := memory.NewStore(ctx, pool)
	if err != nil {
		_ = snapshotStore.Close()
		closePool()
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	base, llmMode, err := llm.NewClient(ctx, llm.ProviderConfig{
		Mode:   cfg.LLMMode,
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		_ = turnStore.Close()
		_ = snapshotStore.Close()
		closePool()
		return nil, fmt.Errorf("llm client init failed: %w", err)
	}
	client := llm.NewRetryingClient(base, llm.RetryOptions{
		Timeout:     cfg.LLMTimeout,
		MaxAttempts: cfg.LLMMaxAttempts,
		BackoffBase: cfg.LLMRetryBase,
		Observer:    metrics,
		Logger:      logger.With().Str("component", "llm").Logger(),
	})

	catalog, err := agents.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		_ = turnStore.Close()
		_ = snapshotStore.Close()
		closePool()
		return nil, fmt.Errorf("catalog load failed: %w", err)
	}

	snapshots := snapshot.NewService(snapshotStore, logger.With().Str("component", "snapshot").Logger())
	compactor := memory.NewCompactor(turnStore, client, memory.CompactorOptions{
		Threshold:       cfg.MemoryCompactThreshold,
		TranscriptLimit: cfg.MemoryTranscriptLimit,
		Observer:        metrics,
		Logger:          logger.With().Str("component", "memory").Logger(),
	})
	router := routing.NewRouter(client, routing.DefaultRegistry(), metrics, logger.With().Str("component", "router").Logger())

	policy := agents.DefaultPolicy()
	policy.PaymentBuffer = cfg.LoanPaymentBuffer
	dispatcher := agents.NewDispatcher(client, snapshots, compactor, agents.Options{
		Policy:          policy,
		Catalog:         catalog,
		Engine:          analytics.NewEngine(analytics.DefaultPolicy(), nil),
		TranscriptLimit: cfg.MemoryTranscriptLimit,
		Observer:        metrics,
		Logger:          logger.With().Str("component", "agents").Logger(),
	})

	orchestrator := chat.NewOrchestrator(snapshots, router, dispatcher, turnStore, compactor, chat.Options{
		HistoryLimit: cfg.HistoryLimit,
		Observer:     metrics,
		Logger:       logger.With().Str("component", "chat").Logger(),
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Assistant: orchestrator,
		Insights:  insights.NewService(client, metrics, logger.With().Str("component", "insights").Logger()),
		Parser:    txparse.NewParser(client, logger.With().Str("component", "txparse").Logger()),
		Metrics:   metrics,
		Logger:    logger.With().Str("component", "http").Logger(),
	})

	sweeper := memory.NewSweeper(compactor, turnStore, logger.With().Str("component", "sweeper").Logger())

	cleanup := func() error {
		var errs []string
		sweeper.Stop()
		if err := turnStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := snapshotStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		closePool()
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Compactor:    compactor,
		Sweeper:      sweeper,
		Metrics:      metrics,
		LLMMode:      llmMode,
		StoreMode:    storeMode,
		Cleanup:      cleanup,
	}, nil
}
