package checksum

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/catalog"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/repomanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const objectKey = "executions/E1/report.txt"

type fixture struct {
	store repomanager.Store
	blobs *blobstore.MemoryStore
	p     *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repomanager.NewMemoryStore()
	_, err := store.Repos().Vaults().Create(ctx, &models.Vault{ID: "V1", Name: "intake"})
	require.NoError(t, err)
	_, err = store.Repos().Cases().Create(ctx, &models.Case{ID: "C1", Name: "SL1"})
	require.NoError(t, err)
	require.NoError(t, store.Repos().Executions().Create(ctx, &models.Execution{ID: "E1", VaultID: "V1", DestinationFolder: "/filesFromSL1/"}))

	blobs := blobstore.NewMemoryStore("evidence")
	return &fixture{
		store: store,
		blobs: blobs,
		p:     NewPipeline(store, blobs, logging.Nop(), metrics.New(prometheus.NewRegistry()), 0),
	}
}

func (f *fixture) put(parts ...[]byte) {
	for i, p := range parts {
		f.blobs.PutPart(objectKey, i+1, p)
	}
}

func event(index int, final bool) models.PartCompleted {
	return models.PartCompleted{
		ObjectKey:       objectKey,
		VaultID:         "V1",
		DestinationPath: "/filesFromSL1/",
		FileName:        "report.txt",
		PartIndex:       index,
		IsFinalPart:     final,
		SizeBytes:       1,
		ExecutionID:     "E1",
	}
}

func (f *fixture) vaultFile(t *testing.T) *models.Node {
	t.Helper()
	n, err := f.store.Repos().Nodes().GetByObjectKey(context.Background(), "V1", objectKey)
	require.NoError(t, err)
	return n
}

func sum(parts ...[]byte) string {
	h := sha256.Sum256(bytes.Join(parts, nil))
	return hex.EncodeToString(h[:])
}

func textParts() [][]byte {
	return [][]byte{
		[]byte(strings.Repeat("first part of the report\n", 200)),
		[]byte(strings.Repeat("second part\n", 100)),
		[]byte("tail\n"),
	}
}

func TestHandlePartCompleted_MatchesSinglePassDigest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parts := textParts()
	f.put(parts...)

	for i := range parts {
		require.NoError(t, f.p.HandlePartCompleted(ctx, event(i+1, i == len(parts)-1)))
	}

	file := f.vaultFile(t)
	assert.Equal(t, sum(parts...), file.ContentHash)
	assert.Equal(t, int64(len(bytes.Join(parts, nil))), file.Size)
	assert.True(t, strings.HasPrefix(file.ContentType, "text/plain"), file.ContentType)
	assert.Equal(t, models.HoldPending, file.HoldStatus)
	assert.Equal(t, "E1", file.ExecutionID)

	_, err := f.store.Repos().ChecksumJobs().Get(ctx, objectKey)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	v, err := f.store.Repos().Vaults().Get(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.ObjectCount)
	assert.Equal(t, file.Size, v.TotalSize)
}

func TestHandlePartCompleted_OutOfOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parts := textParts()
	f.put(parts...)

	err := f.p.HandlePartCompleted(ctx, event(2, false))
	require.ErrorIs(t, err, common.ErrOutOfOrder)
	assert.False(t, common.Permanent(err))

	require.NoError(t, f.p.HandlePartCompleted(ctx, event(1, false)))
	require.ErrorIs(t, f.p.HandlePartCompleted(ctx, event(3, true)), common.ErrOutOfOrder)

	require.NoError(t, f.p.HandlePartCompleted(ctx, event(2, false)))
	require.NoError(t, f.p.HandlePartCompleted(ctx, event(3, true)))

	assert.Equal(t, sum(parts...), f.vaultFile(t).ContentHash)
}

func TestHandlePartCompleted_DuplicatePartIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parts := textParts()
	f.put(parts...)

	require.NoError(t, f.p.HandlePartCompleted(ctx, event(1, false)))
	require.NoError(t, f.p.HandlePartCompleted(ctx, event(2, false)))
	require.NoError(t, f.p.HandlePartCompleted(ctx, event(1, false)))

	job, err := f.store.Repos().ChecksumJobs().Get(ctx, objectKey)
	require.NoError(t, err)
	assert.Equal(t, 3, job.NextPartIndex)
	assert.Equal(t, int64(len(parts[0])+len(parts[1])), job.BytesFolded)
	assert.Equal(t, models.JobAccumulating, job.Status)

	require.NoError(t, f.p.HandlePartCompleted(ctx, event(3, true)))
	assert.Equal(t, sum(parts...), f.vaultFile(t).ContentHash)
}

func TestHandlePartCompleted_ReingestionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parts := textParts()
	f.put(parts...)

	for run := 0; run < 2; run++ {
		for i := range parts {
			require.NoError(t, f.p.HandlePartCompleted(ctx, event(i+1, i == len(parts)-1)))
		}
	}

	assert.Equal(t, sum(parts...), f.vaultFile(t).ContentHash)
	v, err := f.store.Repos().Vaults().Get(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.ObjectCount)
}

func TestHandlePartCompleted_IntegrityMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.put([]byte("original content"))
	require.NoError(t, f.p.HandlePartCompleted(ctx, event(1, true)))
	want := f.vaultFile(t).ContentHash

	// a second transfer run overwrites the object
	f.put([]byte("tampered content"))
	ev := event(1, true)
	ev.ExecutionID = "E2"
	err := f.p.HandlePartCompleted(ctx, ev)
	require.ErrorIs(t, err, common.ErrIntegrity)
	assert.True(t, common.Permanent(err))

	assert.Equal(t, want, f.vaultFile(t).ContentHash)
	job, err := f.store.Repos().ChecksumJobs().Get(ctx, objectKey)
	require.NoError(t, err)
	assert.Equal(t, models.JobFinalizing, job.Status)

	// a later delivery retries the finalization and fails the same way
	require.ErrorIs(t, f.p.HandlePartCompleted(ctx, ev), common.ErrIntegrity)
}

func TestHandlePartCompleted_RedeliveryAfterCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parts := textParts()
	f.put(parts...)
	for i := range parts {
		require.NoError(t, f.p.HandlePartCompleted(ctx, event(i+1, i == len(parts)-1)))
	}
	before := f.vaultFile(t)

	for _, ev := range []models.PartCompleted{event(3, true), event(2, false), event(1, false)} {
		require.NoError(t, f.p.HandlePartCompleted(ctx, ev), "part %d", ev.PartIndex)
	}

	_, err := f.store.Repos().ChecksumJobs().Get(ctx, objectKey)
	assert.ErrorIs(t, err, common.ErrorNotFound, "no job is left behind")
	after := f.vaultFile(t)
	assert.Equal(t, before.ContentHash, after.ContentHash)
	assert.Equal(t, before.Version, after.Version)

	v, err := f.store.Repos().Vaults().Get(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.ObjectCount)
	assert.Equal(t, after.Size, v.TotalSize)
}

func TestHandlePartCompleted_NewExecutionVerifiesAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parts := textParts()
	f.put(parts...)
	for i := range parts {
		require.NoError(t, f.p.HandlePartCompleted(ctx, event(i+1, i == len(parts)-1)))
	}

	ev := event(1, false)
	ev.ExecutionID = "E2"
	require.NoError(t, f.p.HandlePartCompleted(ctx, ev))
	job, err := f.store.Repos().ChecksumJobs().Get(ctx, objectKey)
	require.NoError(t, err)
	assert.Equal(t, 2, job.NextPartIndex)

	// a part ahead of the new run waits for it
	ev = event(3, true)
	ev.ExecutionID = "E2"
	require.ErrorIs(t, f.p.HandlePartCompleted(ctx, ev), common.ErrOutOfOrder)

	ev = event(2, false)
	ev.ExecutionID = "E2"
	require.NoError(t, f.p.HandlePartCompleted(ctx, ev))
	ev = event(3, true)
	ev.ExecutionID = "E2"
	require.NoError(t, f.p.HandlePartCompleted(ctx, ev))

	assert.Equal(t, sum(parts...), f.vaultFile(t).ContentHash)
	_, err = f.store.Repos().ChecksumJobs().Get(ctx, objectKey)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestHandlePartCompleted_MissingVaultFileDropsJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Repos().ChecksumJobs().Create(ctx, &models.ChecksumJob{
		ObjectKey:     objectKey,
		VaultID:       "V1",
		NextPartIndex: 3,
		Status:        models.JobFinalizing,
	}))

	err := f.p.HandlePartCompleted(ctx, event(2, true))
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.True(t, common.Permanent(err))

	_, err = f.store.Repos().ChecksumJobs().Get(ctx, objectKey)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestHandlePartCompleted_PropagatesHashToCaseFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var caseFile *models.Node
	err := f.store.RunInTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		res, err := catalog.UpsertLeafTx(ctx, r, models.VaultOwner("V1"), "/filesFromSL1/", "report.txt", models.LeafAttrs{
			ObjectKey: objectKey, ExecutionID: "E1", HoldStatus: models.HoldApplied,
		})
		if err != nil {
			return err
		}
		cf, err := catalog.UpsertLeafTx(ctx, r, models.CaseOwner("C1"), "/", "report.txt", models.LeafAttrs{
			SourceVaultID: "V1", SourceFileID: res.Node.ID,
		})
		caseFile = cf.Node
		return err
	})
	require.NoError(t, err)

	data := []byte("%PDF-1.7\nstatement of evidence")
	f.put(data)
	require.NoError(t, f.p.HandlePartCompleted(ctx, event(1, true)))

	file := f.vaultFile(t)
	assert.Equal(t, models.HoldApplied, file.HoldStatus)
	assert.Equal(t, "application/pdf", file.ContentType)

	got, err := f.store.Repos().Nodes().FindBySource(ctx, "C1", caseFile.SourceFileID)
	require.NoError(t, err)
	assert.Equal(t, sum(data), got.ContentHash)
}

func TestHandlePartCompleted_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		edit func(*models.PartCompleted)
		want error
	}{
		{"zero part index", func(e *models.PartCompleted) { e.PartIndex = 0 }, common.ErrInvalidArgument},
		{"no object key", func(e *models.PartCompleted) { e.ObjectKey = "" }, common.ErrInvalidArgument},
		{"bad path", func(e *models.PartCompleted) { e.DestinationPath = "../x" }, common.ErrInvalidPath},
		{"bad name", func(e *models.PartCompleted) { e.FileName = "a/b" }, common.ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := event(1, true)
			tt.edit(&ev)
			assert.ErrorIs(t, f.p.HandlePartCompleted(context.Background(), ev), tt.want)
		})
	}
}

func TestHandlePartCompleted_MissingPartIsRetried(t *testing.T) {
	f := newFixture(t)
	err := f.p.HandlePartCompleted(context.Background(), event(1, false))
	require.ErrorIs(t, err, common.ErrObjectNotVisible)
	assert.False(t, common.Permanent(err), "the part may not be visible yet")

	// the part shows up on a later delivery
	f.put([]byte("late part"))
	require.NoError(t, f.p.HandlePartCompleted(context.Background(), event(1, true)))
	assert.Equal(t, sum([]byte("late part")), f.vaultFile(t).ContentHash)
}

func TestHandlePartCompleted_ConcurrentObjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	keys := []string{"a.bin", "b.bin", "c.bin", "d.bin"}
	for _, k := range keys {
		f.blobs.PutPart("k/"+k, 1, []byte(k))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(keys))
	for i, k := range keys {
		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			ev := event(1, true)
			ev.ObjectKey = "k/" + k
			ev.DestinationPath = "/batch/nested/"
			ev.FileName = k
			errs[i] = f.p.HandlePartCompleted(ctx, ev)
		}(i, k)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	for _, k := range keys {
		n, err := f.store.Repos().Nodes().GetByObjectKey(ctx, "V1", "k/"+k)
		require.NoError(t, err)
		assert.Equal(t, sum([]byte(k)), n.ContentHash)
	}
	v, err := f.store.Repos().Vaults().Get(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(keys)), v.ObjectCount)
}

func TestDigest(t *testing.T) {
	parts := textParts()
	got, err := Digest(bytes.NewReader(parts[0]), bytes.NewReader(parts[1]), bytes.NewReader(parts[2]))
	require.NoError(t, err)
	assert.Equal(t, sum(parts...), got)
}

func TestHashStateRoundTrip(t *testing.T) {
	h, err := newHash(nil)
	require.NoError(t, err)
	_, _ = h.Write([]byte("abc"))
	state, err := saveHash(h)
	require.NoError(t, err)

	resumed, err := newHash(state)
	require.NoError(t, err)
	_, _ = resumed.Write([]byte("def"))
	assert.Equal(t, sum([]byte("abcdef")), hex.EncodeToString(resumed.Sum(nil)))
}

func TestHead_KeepsPrefix(t *testing.T) {
	w := &head{limit: 4}
	n, err := w.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, _ = w.Write([]byte("cdef"))
	assert.Equal(t, 4, n)
	_, _ = w.Write([]byte("gh"))
	assert.Equal(t, "abcd", string(w.buf))
}
