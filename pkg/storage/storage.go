package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/storage/memory"
	"github.com/feichai0017/lefse-processor/pkg/storage/minio"
	"github.com/feichai0017/lefse-processor/pkg/storage/s3"
)

// StorageType selects a backend.
type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

// Storage is an object store for run artifacts.
type Storage interface {
	// Store writes the object and returns its URI.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore deletes objects under prefix last modified before
	// threshold and returns how many were removed.
	CleanupBefore(ctx context.Context, prefix string, threshold time.Time) (int, error)
}

// NewStorage creates the backend named by storageType.
func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.GetClient(ctx, log)
	case StorageTypeMinio:
		return minio.GetClient(ctx, log)
	case StorageTypeMemory:
		return memory.New("memory"), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// ResultsPrefix is the key prefix of every artifact uploaded in env.
func ResultsPrefix(env string) string {
	return path.Join(env, "analysis_results") + "/"
}

// ArtifactKey namespaces an artifact by environment and analysis.
func ArtifactKey(env, analysisID, localPath string) string {
	return ResultsPrefix(env) + path.Join(analysisID, filepath.Base(localPath))
}

// Upload stores the file at localPath under key.
func Upload(ctx context.Context, s Storage, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	return s.Store(ctx, f, key)
}
