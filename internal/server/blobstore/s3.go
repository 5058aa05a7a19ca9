package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/evidencekeeper/internal/common"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in)
	}
	putObjectLegalHold = func(c *s3.Client, ctx context.Context, in *s3.PutObjectLegalHoldInput) error {
		_, err := c.PutObjectLegalHold(ctx, in)
		return err
	}
	getObjectLegalHold = func(c *s3.Client, ctx context.Context, in *s3.GetObjectLegalHoldInput) (*s3.GetObjectLegalHoldOutput, error) {
		return c.GetObjectLegalHold(ctx, in)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3Store talks to an S3 compatible object store through aws-sdk-go-v2.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Store{client: client, presign: newS3PresignClient(client), bucket: opts.Bucket}, nil
}

func (s *S3Store) ReadPart(ctx context.Context, key string, partIndex int) (io.ReadCloser, error) {
	out, err := getObject(s.client, ctx, &s3.GetObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key),
		PartNumber: aws.Int32(int32(partIndex)),
	})
	if err != nil {
		return nil, mapS3Error(key, err)
	}
	return out.Body, nil
}

func (s *S3Store) ApplyImmutabilityHold(ctx context.Context, ref ObjectRef) error {
	err := putObjectLegalHold(s.client, ctx, &s3.PutObjectLegalHoldInput{
		Bucket:    aws.String(s.bucket),
		Key:       aws.String(ref.Key),
		VersionId: versionID(ref),
		LegalHold: &types.ObjectLockLegalHold{Status: types.ObjectLockLegalHoldStatusOn},
	})
	if err != nil {
		return mapS3Error(ref.String(), err)
	}
	return nil
}

func (s *S3Store) HoldStatus(ctx context.Context, ref ObjectRef) (bool, error) {
	out, err := getObjectLegalHold(s.client, ctx, &s3.GetObjectLegalHoldInput{
		Bucket:    aws.String(s.bucket),
		Key:       aws.String(ref.Key),
		VersionId: versionID(ref),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchObjectLockConfiguration" {
			return false, nil
		}
		return false, mapS3Error(ref.String(), err)
	}
	return out.LegalHold != nil && out.LegalHold.Status == types.ObjectLockLegalHoldStatusOn, nil
}

func (s *S3Store) GenerateDownloadURL(ctx context.Context, ref ObjectRef, expiry time.Duration) (string, error) {
	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket:    aws.String(s.bucket),
		Key:       aws.String(ref.Key),
		VersionId: versionID(ref),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func versionID(ref ObjectRef) *string {
	if ref.VersionID == "" {
		return nil
	}
	return aws.String(ref.VersionID)
}

func mapS3Error(key string, err error) error {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return fmt.Errorf("object %s: %w", key, common.ErrObjectNotVisible)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchVersion":
			return fmt.Errorf("object %s: %w", key, common.ErrObjectNotVisible)
		}
	}
	return fmt.Errorf("object %s: %w", key, err)
}
