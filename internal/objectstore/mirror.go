package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
)

// FilePutter is the subset of *minio.Client the mirror needs.
type FilePutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror uploads bundle directories to a single bucket.
type Mirror struct {
	client FilePutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMirror returns a Mirror writing into cfg.Bucket under cfg.Prefix.
func NewMirror(client FilePutter, cfg Config, logger *slog.Logger) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("objectstore: client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("objectstore: bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// MirrorDir uploads every regular file below dir to <prefix>/<name>/<rel>
// and returns "<bucket>/<key prefix>".
func (m *Mirror) MirrorDir(ctx context.Context, dir, name string) (string, error) {
	keyPrefix := path.Join(m.prefix, name)

	var uploaded int
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(keyPrefix, filepath.ToSlash(rel))
		opts := minio.PutObjectOptions{ContentType: contentType(p)}
		if _, err := m.client.FPutObject(ctx, m.bucket, key, p, opts); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: mirror %s: %w", dir, err)
	}

	m.logger.Debug("mirrored directory", "bucket", m.bucket, "prefix", keyPrefix, "objects", uploaded)
	return m.bucket + "/" + keyPrefix, nil
}

func contentType(p string) string {
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
