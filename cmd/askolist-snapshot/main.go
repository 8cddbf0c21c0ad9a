package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/askolist/askolist/internal/config"
	"github.com/askolist/askolist/internal/dataset"
	"github.com/askolist/askolist/internal/observability"
	"github.com/askolist/askolist/internal/storage"
	s3store "github.com/askolist/askolist/internal/storage/s3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("askolist-snapshot")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	csvDir := flag.String("csv-dir", cfg.Dataset.CSVDir, "directory holding the Olist CSV export")
	out := flag.String("out", filepath.Join(cfg.Dataset.WorkDir, cfg.Dataset.Name+".parquet"), "output parquet path")
	publish := flag.Bool("publish", false, "upload the snapshot to the object store")
	flag.Parse()

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *csvDir == "" {
		fmt.Fprintln(os.Stderr, "-csv-dir or ASKOLIST_DATASET_CSV_DIR is required")
		os.Exit(2)
	}

	start := time.Now()
	summary, err := dataset.BuildOlist(ctx, *csvDir, *out)
	if err != nil {
		logger.Error("dataset build failed", slog.Any("error", err))
		os.Exit(1)
	}
	for _, missing := range summary.MissingFiles {
		logger.Warn("dataset source missing", slog.String("file", missing))
	}
	ds, err := dataset.Open(summary.OutputPath)
	if err != nil {
		logger.Error("built dataset is unreadable", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("dataset built",
		slog.String("path", ds.Path),
		slog.Int64("rows", ds.NumRows),
		slog.Int("columns", len(ds.Columns)),
		slog.String("duration", time.Since(start).String()),
	)

	if !*publish {
		return
	}
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	key, err := storage.BuildSnapshotPath(cfg.Dataset.Name, time.Now())
	if err != nil {
		logger.Error("invalid snapshot path", slog.Any("error", err))
		os.Exit(1)
	}
	info, err := dataset.Publish(ctx, store, ds, key)
	if err != nil {
		logger.Error("snapshot upload failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("snapshot published", slog.String("key", info.Key), slog.Int64("size_bytes", info.Size))
}
