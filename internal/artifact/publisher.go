package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"costa/internal/logging"

	"github.com/minio/minio-go/v7"
)

// Store is the part of *minio.Client the publisher needs.
type Store interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads the files a model stage left in the model directory.
type Publisher struct {
	store Store
	cfg   Config
}

func NewPublisher(store Store, cfg Config) *Publisher {
	return &Publisher{store: store, cfg: cfg}
}

// Publish uploads every regular file under dir to
// <bucket>/<prefix>/<runID>/<relative path> and returns the object keys.
func (p *Publisher) Publish(ctx context.Context, runID, dir string) ([]string, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("artifact: ensure bucket %s: %w", p.cfg.Bucket, err)
	}

	var keys []string
	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		key := ObjectKey(p.cfg.Prefix, runID, rel)
		if _, err := p.store.FPutObject(ctx, p.cfg.Bucket, key, file, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		}); err != nil {
			return fmt.Errorf("artifact: upload %s: %w", key, err)
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, err
	}
	logging.L().Info("model artifacts published", "bucket", p.cfg.Bucket, "run_id", runID, "objects", len(keys))
	return keys, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	exists, err := p.store.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.store.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region})
}

// ObjectKey joins prefix, run id and a relative file path with slashes.
func ObjectKey(prefix, runID, rel string) string {
	return path.Join(prefix, runID, filepath.ToSlash(rel))
}
