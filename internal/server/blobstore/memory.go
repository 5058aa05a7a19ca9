package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
)

// MemoryStore keeps object parts and holds in process. Holds are tracked
// per version; PutVersion moves an object to a new current version.
type MemoryStore struct {
	mu       sync.Mutex
	bucket   string
	parts    map[string]map[int][]byte
	versions map[string]string
	holds    map[ObjectRef]bool

	// HoldErr, when set, fails ApplyImmutabilityHold.
	HoldErr error
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:   bucket,
		parts:    map[string]map[int][]byte{},
		versions: map[string]string{},
		holds:    map[ObjectRef]bool{},
	}
}

// PutPart stores part partIndex of key.
func (m *MemoryStore) PutPart(key string, partIndex int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parts[key] == nil {
		m.parts[key] = map[int][]byte{}
	}
	m.parts[key][partIndex] = append([]byte(nil), data...)
}

// PutVersion makes version the current version of key, as a re-upload does.
func (m *MemoryStore) PutVersion(key, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[key] = version
}

// resolve pins an unversioned ref to the current version. Callers hold mu.
func (m *MemoryStore) resolve(ref ObjectRef) ObjectRef {
	if ref.VersionID == "" {
		ref.VersionID = m.versions[ref.Key]
	}
	return ref
}

func (m *MemoryStore) ReadPart(_ context.Context, key string, partIndex int) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.parts[key][partIndex]
	if !ok {
		return nil, fmt.Errorf("object %s part %d: %w", key, partIndex, common.ErrObjectNotVisible)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) ApplyImmutabilityHold(_ context.Context, ref ObjectRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HoldErr != nil {
		return m.HoldErr
	}
	if _, ok := m.parts[ref.Key]; !ok {
		return fmt.Errorf("object %s: %w", ref, common.ErrObjectNotVisible)
	}
	m.holds[m.resolve(ref)] = true
	return nil
}

func (m *MemoryStore) HoldStatus(_ context.Context, ref ObjectRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holds[m.resolve(ref)], nil
}

func (m *MemoryStore) GenerateDownloadURL(_ context.Context, ref ObjectRef, expiry time.Duration) (string, error) {
	u := url.URL{Scheme: "memory", Host: m.bucket, Path: "/" + ref.Key}
	q := url.Values{"expires": {expiry.String()}}
	if ref.VersionID != "" {
		q.Set("versionId", ref.VersionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
