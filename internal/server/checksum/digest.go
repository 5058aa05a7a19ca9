package checksum

import (
	"encoding"
	"encoding/hex"
	"errors"
	"hash"
	"io"

	"github.com/minio/sha256-simd"
)

// sniffLimit is how much of the first part is kept for content sniffing.
const sniffLimit = 3072

var errNotResumable = errors.New("hash state is not marshalable")

// Digest hashes the parts in order, the way the pipeline folds them.
func Digest(parts ...io.Reader) (string, error) {
	h := sha256.New()
	for _, p := range parts {
		if _, err := io.Copy(h, p); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(state []byte) (hash.Hash, error) {
	h := sha256.New()
	if len(state) == 0 {
		return h, nil
	}
	u, ok := h.(encoding.BinaryUnmarshaler)
	if !ok {
		return nil, errNotResumable
	}
	if err := u.UnmarshalBinary(state); err != nil {
		return nil, err
	}
	return h, nil
}

func saveHash(h hash.Hash) ([]byte, error) {
	m, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return nil, errNotResumable
	}
	return m.MarshalBinary()
}

// head keeps the first limit bytes written to it.
type head struct {
	limit int
	buf   []byte
}

func (w *head) Write(p []byte) (int, error) {
	if room := w.limit - len(w.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		w.buf = append(w.buf, p[:room]...)
	}
	return len(p), nil
}
