// Package archive keeps an immutable copy of every collected lead in
// S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/bytedance/sonic"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the archive bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Complete reports whether enough settings are present to use S3.
func (c S3Config) Complete() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

// S3Archive writes leads as JSON objects under leads/<yyyy>/<mm>/<session_id>.json.
type S3Archive struct {
	client *minio.Client
	bucket string
	region string

	mu    sync.Mutex
	ready bool
}

// NewS3Archive creates the archive client. No request is made until the
// first lead is archived.
func NewS3Archive(cfg S3Config) (*S3Archive, error) {
	if !cfg.Complete() {
		return nil, fmt.Errorf("s3 endpoint, credentials and bucket are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Archive{client: client, bucket: strings.TrimSpace(cfg.Bucket), region: region}, nil
}

// ensureBucket creates the bucket on first use. Failures are retried on the
// next call.
func (a *S3Archive) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return err
		}
	}
	a.ready = true
	return nil
}

// Notify implements notifier.Sink by archiving the lead.
func (a *S3Archive) Notify(ctx context.Context, lead domain.LeadSnapshot) error {
	if lead.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if err := a.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	body, err := sonic.Marshal(lead)
	if err != nil {
		return fmt.Errorf("encode lead: %w", err)
	}
	_, err = a.client.PutObject(ctx, a.bucket, ObjectKey(lead), bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put lead object: %w", err)
	}
	return nil
}

// Ping checks the bucket is reachable.
func (a *S3Archive) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}

// ObjectKey returns the object key for a lead.
func ObjectKey(lead domain.LeadSnapshot) string {
	t := lead.CollectedAt.UTC()
	return fmt.Sprintf("leads/%04d/%02d/%s.json", t.Year(), int(t.Month()), lead.SessionID)
}
