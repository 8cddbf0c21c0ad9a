package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/askolist/askolist/internal/config"
	"github.com/askolist/askolist/internal/dataset"
	s3store "github.com/askolist/askolist/internal/storage/s3"
)

// loadDataset resolves the relation in precedence order: object store
// snapshot, CSV build, local parquet path.
func loadDataset(ctx context.Context, cfg config.Config, logger *slog.Logger) (*dataset.Dataset, error) {
	switch {
	case cfg.Dataset.SnapshotKey != "":
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
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
		key, err := dataset.ResolveSnapshotKey(ctx, store, cfg.Dataset.Name, cfg.Dataset.SnapshotKey)
		if err != nil {
			return nil, err
		}
		logger.Info("fetching dataset snapshot", slog.String("key", key))
		return dataset.Fetch(ctx, store, key, cfg.Dataset.WorkDir)
	case cfg.Dataset.CSVDir != "":
		out := filepath.Join(cfg.Dataset.WorkDir, cfg.Dataset.Name+".parquet")
		summary, err := dataset.BuildOlist(ctx, cfg.Dataset.CSVDir, out)
		if err != nil {
			return nil, err
		}
		for _, missing := range summary.MissingFiles {
			logger.Warn("dataset source missing", slog.String("file", missing))
		}
		return dataset.Open(summary.OutputPath)
	default:
		return dataset.Open(cfg.Dataset.Path)
	}
}
