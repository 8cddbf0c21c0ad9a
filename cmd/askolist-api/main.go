package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/askolist/askolist/internal/api"
	"github.com/askolist/askolist/internal/assistant"
	auditpostgres "github.com/askolist/askolist/internal/audit/postgres"
	"github.com/askolist/askolist/internal/auth"
	"github.com/askolist/askolist/internal/config"
	"github.com/askolist/askolist/internal/llm"
	"github.com/askolist/askolist/internal/memory"
	"github.com/askolist/askolist/internal/observability"
	duckdbengine "github.com/askolist/askolist/internal/query/duckdb"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("askolist-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ds, err := loadDataset(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load dataset", slog.Any("error", err))
		os.Exit(1)
	}
	observability.SetDatasetRows(ds.NumRows)
	logger.Info("dataset loaded",
		slog.String("path", ds.Path),
		slog.Int64("rows", ds.NumRows),
		slog.Int("columns", len(ds.Columns)),
	)

	generator, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		ChatPath:    cfg.LLM.ChatPath,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   int64(cfg.LLM.MaxTokens),
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm generator", slog.Any("error", err))
		os.Exit(1)
	}

	engine, err := duckdbengine.Bind(ctx, ds, duckdbengine.Options{
		MaxRows:  cfg.Assistant.MaxResultRows,
		ReadOnly: cfg.Assistant.ReadOnlySQL,
	})
	if err != nil {
		logger.Error("failed to bind query engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	conversation, err := memory.New(cfg.Assistant.MemoryTurns)
	if err != nil {
		logger.Error("failed to create conversation memory", slog.Any("error", err))
		os.Exit(1)
	}
	asst, err := assistant.New(assistant.Config{
		Generator:    generator,
		Engine:       engine,
		Dataset:      ds,
		Memory:       conversation,
		Logger:       logger,
		SampleRows:   cfg.Assistant.SampleRows,
		LLMTimeout:   cfg.LLM.Timeout,
		QueryTimeout: cfg.Assistant.QueryTimeout,
	})
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Assistant:         asst,
		DependencyTimeout: time.Second,
	}
	readiness := []api.ReadinessCheck{api.CheckDatasetFile(ds.Path)}

	if cfg.Audit.Enabled {
		auditDB, err := auditpostgres.Open(ctx, auditpostgres.DBConfig{
			DSN:             cfg.Audit.DSN,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open audit db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = auditDB.Close() }()
		repo := auditpostgres.NewRepository(auditDB)
		deps.Audit = repo
		readiness = append(readiness, api.CheckAudit(repo))
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if validator.Len() == 0 {
			logger.Warn("auth required but no static keys configured; every protected request will be rejected")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
