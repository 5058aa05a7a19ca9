// Package blobstore reads uploaded object parts from the object store and
// manages their legal holds and download links.
package blobstore

import (
	"context"
	"io"
	"time"
)

// ObjectRef names one version of an object. An empty VersionID means the
// current version; hold and download calls pin it when the upload event
// carried one.
type ObjectRef struct {
	Key       string
	VersionID string
}

func (r ObjectRef) String() string {
	if r.VersionID == "" {
		return r.Key
	}
	return r.Key + "@" + r.VersionID
}

// Store is the object store seen by the ingestion pipeline.
//
// A missing object or part is reported as common.ErrObjectNotVisible.
type Store interface {
	// ReadPart streams part partIndex (1-based) of the object at key.
	ReadPart(ctx context.Context, key string, partIndex int) (io.ReadCloser, error)
	ApplyImmutabilityHold(ctx context.Context, ref ObjectRef) error
	// HoldStatus reports whether a legal hold is in effect on the object version.
	HoldStatus(ctx context.Context, ref ObjectRef) (bool, error)
	GenerateDownloadURL(ctx context.Context, ref ObjectRef, expiry time.Duration) (string, error)
}

// Options locate the bucket and carry its credentials.
type Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	BaseEndpoint string
}
