// Package s3repo implements snapshot.Repository against an S3-compatible
// object store via aws-sdk-go-v2, using a content-addressed key layout:
// indices/<index-uuid>/<shard-number>/<checksum> for file objects and
// manifests/<name> for manifests.
package s3repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dreamware/vindex/internal/snapshot"
	"github.com/dreamware/vindex/internal/vlog"
)

var log = vlog.Component("snapshot.s3repo")

// Config configures the S3-backed snapshot repository.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// Repository implements snapshot.Repository against a single S3 bucket.
type Repository struct {
	client *s3.Client
	bucket string
}

// Open builds a Repository, loading AWS credentials and region from the
// default provider chain (environment, shared config, instance profile).
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3repo: bucket name required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return &Repository{client: client, bucket: cfg.Bucket}, nil
}

func fileKey(indexUUID string, shard int, checksum uint64) string {
	return fmt.Sprintf("indices/%s/%d/%016x", indexUUID, shard, checksum)
}

func manifestKey(name string) string {
	return "manifests/" + name
}

// Has performs a HeadObject to check presence without downloading the body,
// letting Take skip re-uploading a file whose checksum the store already has.
func (r *Repository) Has(ctx context.Context, indexUUID string, shard int, checksum uint64) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(fileKey(indexUUID, shard, checksum)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, err
}

func (r *Repository) Put(ctx context.Context, indexUUID string, shard int, checksum uint64, data []byte) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(fileKey(indexUUID, shard, checksum)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, indexUUID string, shard int, checksum uint64) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(fileKey(indexUUID, shard, checksum)),
	})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (r *Repository) PutManifest(ctx context.Context, name string, m snapshot.Manifest) error {
	data, err := snapshot.ManifestBytes(m)
	if err != nil {
		return err
	}
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(r.bucket),
		Key:      aws.String(manifestKey(name)),
		Body:     bytes.NewReader(data),
		Metadata: map[string]string{"shard": strconv.Itoa(m.Shard)},
	})
	if err != nil {
		return fmt.Errorf("put manifest: %w", err)
	}
	return nil
}

func (r *Repository) GetManifest(ctx context.Context, name string) (snapshot.Manifest, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(manifestKey(name)),
	})
	if err != nil {
		return snapshot.Manifest{}, fmt.Errorf("get manifest: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return snapshot.Manifest{}, err
	}
	return snapshot.ManifestFromBytes(data)
}
