// Package common defines sentinel errors shared by the catalog, the
// association manager and the asynchronous consumers. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidPath     = errors.New("invalid path")

	// Catalog errors.
	ErrNameConflict   = errors.New("name conflict")
	ErrFolderConflict = errors.New("folder and file share the same path and name")

	// Ingestion pipeline errors.
	ErrOutOfOrder  = errors.New("part out of order")
	ErrIntegrity   = errors.New("content hash mismatch")
	ErrHoldPending = errors.New("legal hold not yet applied")

	// ErrObjectNotVisible is a blob store miss. Object stores are eventually
	// consistent, so a missing object or part is retried, unlike a missing
	// catalog record.
	ErrObjectNotVisible = errors.New("object not visible in blob store")
)

// Permanent reports whether err must not be retried by an asynchronous
// consumer. Permanent failures are dead-lettered on first occurrence.
func Permanent(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrIntegrity),
		errors.Is(err, ErrorNotFound),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInvalidPath),
		errors.Is(err, ErrFolderConflict):
		return true
	}
	return false
}
