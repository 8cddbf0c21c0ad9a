package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/askolist/askolist/internal/storage"
)

const (
	// LatestSnapshot as a snapshot key resolves to the newest published snapshot.
	LatestSnapshot = "latest"

	parquetContentType = "application/vnd.apache.parquet"
)

// Publish uploads the dataset's Parquet file to store under key.
func Publish(ctx context.Context, store storage.ObjectStore, ds *Dataset, key string) (storage.ObjectInfo, error) {
	if store == nil {
		return storage.ObjectInfo{}, fmt.Errorf("object store is required")
	}
	if ds == nil {
		return storage.ObjectInfo{}, fmt.Errorf("dataset is required")
	}
	file, err := os.Open(ds.Path)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("open dataset file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat dataset file: %w", err)
	}
	object, err := store.Put(ctx, key, file, info.Size(), storage.PutOptions{ContentType: parquetContentType})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("publish snapshot: %w", err)
	}
	return object, nil
}

// ResolveSnapshotKey maps LatestSnapshot to the newest key under the
// snapshot prefix for name and returns any other key unchanged.
func ResolveSnapshotKey(ctx context.Context, store storage.ObjectStore, name, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key != LatestSnapshot {
		return key, nil
	}
	prefix, err := storage.SnapshotPrefix(name)
	if err != nil {
		return "", err
	}
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list snapshots: %w", err)
	}
	latest, ok := storage.LatestSnapshot(objects)
	if !ok {
		return "", fmt.Errorf("no snapshot under %q: %w", prefix, storage.ErrObjectNotFound)
	}
	return latest.Key, nil
}

// Fetch downloads the snapshot at key into dir and opens it.
func Fetch(ctx context.Context, store storage.ObjectStore, key, dir string) (*Dataset, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("snapshot key is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("snapshot %q: %w", key, err)
		}
		return nil, fmt.Errorf("download snapshot %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	localPath := filepath.Join(dir, path.Base(key))
	if err := writeFile(localPath, reader); err != nil {
		return nil, fmt.Errorf("write snapshot %q: %w", localPath, err)
	}
	return Open(localPath)
}

// writeFile reports close errors since a failed flush leaves a truncated
// parquet file. A partial file is removed.
func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}
