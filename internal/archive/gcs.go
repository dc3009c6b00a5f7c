package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/alexanderjulianmartinez/quality-watch/internal/config"
)

// GCSUploader uploads run artifacts to Google Cloud Storage.
type GCSUploader struct {
	cfg    config.GCSConfig
	client *storage.Client
}

// NewGCS constructs an uploader from GCS configuration.
func NewGCS(ctx context.Context, cfg config.GCSConfig) (*GCSUploader, error) {
	if !cfg.Enabled {
		return &GCSUploader{cfg: cfg}, nil
	}
	opts := []option.ClientOption{}
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(strings.TrimSpace(cfg.CredentialsFile)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "gcs client")
	}
	return &GCSUploader{cfg: cfg, client: client}, nil
}

func (u *GCSUploader) Enabled() bool {
	return u.cfg.Enabled
}

func (u *GCSUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if !u.cfg.Enabled {
		return "", nil
	}
	if u.client == nil {
		return "", errors.New("gcs uploader is not initialized")
	}
	key := joinPrefix(u.cfg.Prefix, name)

	writer := u.client.Bucket(u.cfg.Bucket).Object(key).NewWriter(ctx)
	writer.ContentType = "application/zstd"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return "", errors.Wrapf(err, "gcs upload %s", key)
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrapf(err, "gcs upload %s", key)
	}
	return fmt.Sprintf("gs://%s/%s", u.cfg.Bucket, key), nil
}

func (u *GCSUploader) Close() error {
	if u.client == nil {
		return nil
	}
	return u.client.Close()
}
