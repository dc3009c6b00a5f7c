package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/internal/config"
)

// S3Uploader uploads run artifacts to S3-compatible storage.
type S3Uploader struct {
	cfg    config.S3Config
	client *s3.Client
}

// NewS3 constructs an uploader from S3 configuration.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	if !cfg.Enabled {
		return &S3Uploader{cfg: cfg}, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Uploader{cfg: cfg, client: client}, nil
}

func (u *S3Uploader) Enabled() bool {
	return u.cfg.Enabled
}

func (u *S3Uploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if !u.cfg.Enabled {
		return "", nil
	}
	if u.client == nil {
		return "", errors.New("s3 uploader is not initialized")
	}
	key := joinPrefix(u.cfg.Prefix, name)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/zstd"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "s3 upload %s", key)
	}
	return fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, key), nil
}
