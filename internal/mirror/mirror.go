// Package mirror copies a tenant's documents to S3-compatible storage.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/metrics"
	"github.com/axenox/Sketch/internal/store"
)

// Config describes the target bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
}

// API is the subset of the S3 client used by the mirror.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient builds an S3 client for cfg. A non-empty Endpoint selects
// path-style addressing, as MinIO expects.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Mirror uploads documents to one bucket.
type Mirror struct {
	client API
	bucket string
	prefix string
}

// New creates a mirror writing to bucket under prefix.
func New(client API, bucket, prefix string) *Mirror {
	return &Mirror{client: client, bucket: bucket, prefix: prefix}
}

// Report summarizes a mirror run.
type Report struct {
	Tenant   string   `json:"tenant"`
	DryRun   bool     `json:"dryRun"`
	Uploaded int      `json:"uploaded"`
	Failed   int      `json:"failed"`
	Bytes    int64    `json:"bytes"`
	Keys     []string `json:"keys"`
}

// Key returns the object key for a document at fsPath.
func Key(prefix, vendor, alias, fsPath string) string {
	return path.Join(prefix, vendor, alias, filepath.ToSlash(fsPath))
}

// EnsureBucket creates the bucket when it does not exist.
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(m.bucket),
	})
	metrics.RecordS3Operation("head_bucket", time.Since(start))
	if err == nil {
		return nil
	}

	start = time.Now()
	_, err = m.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(m.bucket),
	})
	metrics.RecordS3Operation("create_bucket", time.Since(start))
	if err != nil {
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", m.bucket, err)
	}
	logging.Info("created S3 bucket", zap.String("bucket", m.bucket))
	return nil
}

// Run uploads every document of the tenant rooted at st. With dryRun set the
// keys are computed and reported but nothing is sent. Upload failures are
// counted and logged; Run only fails when the tree cannot be enumerated.
func (m *Mirror) Run(ctx context.Context, st *store.Store, vendor, alias string, dryRun bool) (*Report, error) {
	result, err := st.ListAll(ctx, store.DefaultPattern, "")
	if err != nil {
		return nil, fmt.Errorf("enumerate documents: %w", err)
	}

	log := logging.WithContext(ctx).With(
		zap.String("tenant", vendor+"/"+alias),
		zap.String("bucket", m.bucket),
	)
	report := &Report{
		Tenant: vendor + "/" + alias,
		DryRun: dryRun,
		Keys:   []string{},
	}

	for _, hit := range result.Results {
		key := Key(m.prefix, vendor, alias, hit.FSPath)
		if dryRun {
			report.Keys = append(report.Keys, key)
			log.Info("would upload", zap.String("key", key))
			continue
		}

		n, err := m.upload(ctx, filepath.Join(st.Root(), filepath.FromSlash(hit.FSPath)), key)
		metrics.RecordMirrorUpload(n, err == nil)
		if err != nil {
			report.Failed++
			log.Warn("upload failed", zap.String("key", key), zap.Error(err))
			continue
		}
		report.Uploaded++
		report.Bytes += n
		report.Keys = append(report.Keys, key)
		log.Debug("uploaded", zap.String("key", key), zap.Int64("bytes", n))
	}

	log.Info("mirror finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("uploaded", report.Uploaded),
		zap.Int("failed", report.Failed),
		zap.Int64("bytes", report.Bytes),
	)
	return report, nil
}

func (m *Mirror) upload(ctx context.Context, abs, key string) (int64, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", abs, err)
	}

	start := time.Now()
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	metrics.RecordS3Operation("put_object", time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("put object %s: %w", key, err)
	}
	return int64(len(data)), nil
}
