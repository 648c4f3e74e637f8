// Package preflight verifies that every manifest object exists on the source
// bucket before any import is submitted.
package preflight

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"manifestflow/internal/config"
	"manifestflow/internal/fault"
	"manifestflow/internal/manifest"
	"manifestflow/internal/pipeline"
	"manifestflow/internal/secrets"
)

// Stater is the part of *minio.Client the checker needs.
type Stater interface {
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

type Checker struct {
	s3          Stater
	concurrency int
}

func NewChecker(s3 Stater, concurrency int) *Checker {
	return &Checker{s3: s3, concurrency: concurrency}
}

// New builds a checker backed by a minio client. Without credentials in the
// environment the bucket is read anonymously.
func New(cfg config.Preflight) (*Checker, error) {
	creds := credentials.NewStaticV4("", "", "")
	ak, errA := secrets.FromEnv(cfg.AccessKeyEnv)
	sk, errS := secrets.FromEnv(cfg.SecretKeyEnv)
	if errA == nil && errS == nil {
		creds = credentials.NewStaticV4(ak.Value(), sk.Value(), "")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("preflight: create minio client: %w", err)
	}
	return NewChecker(client, cfg.Concurrency), nil
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fault.Newf(fault.Parse, "preflight", "%q is not an s3:// uri", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fault.Newf(fault.Parse, "preflight", "%q has no bucket or key", uri)
	}
	return bucket, key, nil
}

// Check stats every row's s3_uri and fails on the first missing object.
func (c *Checker) Check(ctx context.Context, rows []manifest.Row) error {
	_, err := pipeline.Map(ctx, rows, pipeline.MapOptions{Concurrency: c.concurrency}, func(ctx context.Context, _ int, r manifest.Row) (struct{}, error) {
		return struct{}{}, c.stat(ctx, r.S3URI)
	})
	return err
}

func (c *Checker) stat(ctx context.Context, uri string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}
	if _, err := c.s3.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		kind := fault.Remote
		switch {
		case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
			kind = fault.NotFound
		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
			kind = fault.Auth
		}
		return &fault.Error{Kind: kind, Op: "preflight: " + uri, Status: resp.StatusCode, Err: err}
	}
	return nil
}
