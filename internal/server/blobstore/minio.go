package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	newMinioClient = func(endpoint string, opts *minio.Options) (*minio.Client, error) {
		return minio.New(endpoint, opts)
	}

	minioGetObject = func(c *minio.Client, ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
		obj, err := c.GetObject(ctx, bucket, key, opts)
		if err != nil {
			return nil, err
		}
		// GetObject is lazy; Stat surfaces a missing object before the
		// caller starts reading.
		if _, err := obj.Stat(); err != nil {
			_ = obj.Close()
			return nil, err
		}
		return obj, nil
	}
	minioPutLegalHold = func(c *minio.Client, ctx context.Context, bucket, key string, opts minio.PutObjectLegalHoldOptions) error {
		return c.PutObjectLegalHold(ctx, bucket, key, opts)
	}
	minioGetLegalHold = func(c *minio.Client, ctx context.Context, bucket, key string, opts minio.GetObjectLegalHoldOptions) (*minio.LegalHoldStatus, error) {
		return c.GetObjectLegalHold(ctx, bucket, key, opts)
	}
	minioPresignedGet = func(c *minio.Client, ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error) {
		return c.PresignedGetObject(ctx, bucket, key, expiry, params)
	}
)

// MinioStore talks to MinIO through minio-go.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(opts Options) (*MinioStore, error) {
	u, err := url.Parse(opts.BaseEndpoint)
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint %q has no host", common.ErrInvalidArgument, opts.BaseEndpoint)
	}

	client, err := newMinioClient(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: u.Scheme == "https",
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

func (s *MinioStore) ReadPart(ctx context.Context, key string, partIndex int) (io.ReadCloser, error) {
	rc, err := minioGetObject(s.client, ctx, s.bucket, key, minio.GetObjectOptions{PartNumber: partIndex})
	if err != nil {
		return nil, mapMinioError(key, err)
	}
	return rc, nil
}

func (s *MinioStore) ApplyImmutabilityHold(ctx context.Context, ref ObjectRef) error {
	on := minio.LegalHoldEnabled
	opts := minio.PutObjectLegalHoldOptions{Status: &on, VersionID: ref.VersionID}
	if err := minioPutLegalHold(s.client, ctx, s.bucket, ref.Key, opts); err != nil {
		return mapMinioError(ref.String(), err)
	}
	return nil
}

func (s *MinioStore) HoldStatus(ctx context.Context, ref ObjectRef) (bool, error) {
	opts := minio.GetObjectLegalHoldOptions{VersionID: ref.VersionID}
	status, err := minioGetLegalHold(s.client, ctx, s.bucket, ref.Key, opts)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchObjectLockConfiguration" {
			return false, nil
		}
		return false, mapMinioError(ref.String(), err)
	}
	return status != nil && *status == minio.LegalHoldEnabled, nil
}

func (s *MinioStore) GenerateDownloadURL(ctx context.Context, ref ObjectRef, expiry time.Duration) (string, error) {
	params := url.Values{}
	if ref.VersionID != "" {
		params.Set("versionId", ref.VersionID)
	}
	u, err := minioPresignedGet(s.client, ctx, s.bucket, ref.Key, expiry, params)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func mapMinioError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchVersion":
		return fmt.Errorf("object %s: %w", key, common.ErrObjectNotVisible)
	}
	return fmt.Errorf("object %s: %w", key, err)
}
