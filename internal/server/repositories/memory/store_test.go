package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.Repos().Vaults().Create(ctx, &models.Vault{ID: "v1", Name: "intake"})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.RunInTx(ctx, func(ctx context.Context, r *Repos) error {
		require.NoError(t, r.Vaults().AddCounters(ctx, "v1", 1, 100))
		_, err := r.Nodes().InsertFolder(ctx, models.VaultOwner("v1"), "/", "a")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, err := s.Repos().Vaults().Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.ObjectCount)
	_, err = s.Repos().Nodes().Get(ctx, models.VaultOwner("v1"), "/", "a")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRunInTx_FailedUnitLeavesNodesUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	n := &models.Node{Owner: models.VaultOwner("v1"), Path: "/", Name: "a.txt",
		ScopedCases: []models.ScopedCase{{CaseID: "c1", CaseName: "SL1"}}}
	require.NoError(t, s.Repos().Nodes().InsertLeaf(ctx, n))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, r *Repos) error {
		cur, err := r.Nodes().GetByID(ctx, models.VaultOwner("v1"), n.ID)
		require.NoError(t, err)
		cur.ScopedCases = append(cur.ScopedCases, models.ScopedCase{CaseID: "c2", CaseName: "SL2"})
		require.NoError(t, r.Nodes().SetScopedCases(ctx, cur))
		cur.Size = 99
		require.NoError(t, r.Nodes().UpdateLeaf(ctx, cur))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Repos().Nodes().GetByID(ctx, models.VaultOwner("v1"), n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, int64(0), got.Size)
	assert.Equal(t, []models.ScopedCase{{CaseID: "c1", CaseName: "SL1"}}, got.ScopedCases)
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.RunInTx(ctx, func(ctx context.Context, r *Repos) error {
		_, err := r.Cases().Create(ctx, &models.Case{ID: "c1", Name: "SL1"})
		return err
	})
	require.NoError(t, err)

	c, err := s.Repos().Cases().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "open", c.Status)
}

func TestRunInTx_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewStore().RunInTx(ctx, func(ctx context.Context, r *Repos) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestNodes_ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repos().Nodes()
	owner := models.VaultOwner("v1")

	leaf := &models.Node{Owner: owner, Path: "/", Name: "a.txt", HoldStatus: models.HoldPending}
	require.NoError(t, repo.InsertLeaf(ctx, leaf))
	assert.Equal(t, int64(1), leaf.Version)

	err := repo.InsertLeaf(ctx, &models.Node{Owner: owner, Path: "/", Name: "a.txt"})
	assert.ErrorIs(t, err, common.ErrVersionConflict)

	stale := *leaf
	leaf.Size = 42
	require.NoError(t, repo.UpdateLeaf(ctx, leaf))
	assert.Equal(t, int64(2), leaf.Version)
	assert.ErrorIs(t, repo.UpdateLeaf(ctx, &stale), common.ErrVersionConflict)
	assert.ErrorIs(t, repo.DeleteLeaf(ctx, &stale), common.ErrVersionConflict)

	ok, err := repo.SetContentHash(ctx, leaf.ID, "h1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.SetContentHash(ctx, leaf.ID, "h2")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, owner, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", got.ContentHash)
	assert.Equal(t, int64(42), got.Size)

	_, err = repo.GetByID(ctx, models.CaseOwner("v1"), leaf.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestNodes_FoldersAndListing(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repos().Nodes()
	owner := models.CaseOwner("c1")

	created, err := repo.InsertFolder(ctx, owner, "/", "b")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.InsertFolder(ctx, owner, "/", "b")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.InsertFolder(ctx, owner, "/", "a")
	require.NoError(t, err)
	require.NoError(t, repo.AddChildCount(ctx, owner, "/", "a", 1))
	require.NoError(t, repo.InsertLeaf(ctx, &models.Node{Owner: owner, Path: "/", Name: "c.txt"}))

	got, err := repo.ListChildren(ctx, owner, "/", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "empty folder b is hidden")
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "c.txt", got[1].Name)

	got, err = repo.ListChildren(ctx, owner, "/", "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c.txt", got[0].Name)

	deleted, err := repo.DeleteFolderIfEmpty(ctx, owner, "/", "a")
	require.NoError(t, err)
	assert.False(t, deleted)
	require.NoError(t, repo.AddChildCount(ctx, owner, "/", "a", -1))
	deleted, err = repo.DeleteFolderIfEmpty(ctx, owner, "/", "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	assert.ErrorIs(t, repo.AddChildCount(ctx, owner, "/", "c.txt", 1), common.ErrorNotFound)
}

func TestNodes_ListByCreation(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repos().Nodes()
	owner := models.VaultOwner("v1")

	for _, name := range []string{"z", "y", "x"} {
		require.NoError(t, repo.InsertLeaf(ctx, &models.Node{Owner: owner, Path: "/", Name: name}))
	}

	page, err := repo.ListByCreation(ctx, owner, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "z", page[0].Name)
	assert.Equal(t, "y", page[1].Name)

	last := page[1]
	page, err = repo.ListByCreation(ctx, owner, &nodes.CreationCursor{CreatedAt: last.CreatedAt, ID: last.ID}, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "x", page[0].Name)
}

func TestNodes_CaseFileLookups(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repos().Nodes()

	src := &models.Node{Owner: models.VaultOwner("v1"), Path: "/", Name: "a", ObjectKey: "k/a"}
	require.NoError(t, repo.InsertLeaf(ctx, src))
	cf := &models.Node{Owner: models.CaseOwner("c1"), Path: "/", Name: "a", SourceVaultID: "v1", SourceFileID: src.ID}
	require.NoError(t, repo.InsertLeaf(ctx, cf))

	got, err := repo.GetByObjectKey(ctx, "v1", "k/a")
	require.NoError(t, err)
	assert.Equal(t, src.ID, got.ID)

	got, err = repo.FindBySource(ctx, "c1", src.ID)
	require.NoError(t, err)
	assert.Equal(t, cf.ID, got.ID)

	require.NoError(t, repo.SetCaseFileHashes(ctx, src.ID, "h"))
	got, err = repo.GetByID(ctx, models.CaseOwner("c1"), cf.ID)
	require.NoError(t, err)
	assert.Equal(t, "h", got.ContentHash)

	got, err = repo.GetByID(ctx, models.VaultOwner("v1"), src.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ContentHash, "vault leaf is not a case file")
}

func TestChecksumJobs(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repos().ChecksumJobs()

	job := &models.ChecksumJob{ObjectKey: "k", NextPartIndex: 2, State: []byte{1}, Status: models.JobAccumulating}
	require.NoError(t, repo.Create(ctx, job))
	assert.ErrorIs(t, repo.Create(ctx, &models.ChecksumJob{ObjectKey: "k"}), common.ErrVersionConflict)

	stale := *job
	job.NextPartIndex = 3
	require.NoError(t, repo.Update(ctx, job))
	assert.ErrorIs(t, repo.Update(ctx, &stale), common.ErrVersionConflict)

	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, got.NextPartIndex)

	require.NoError(t, repo.Delete(ctx, "k"))
	_, err = repo.Get(ctx, "k")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestExecutions_IdempotentCreate(t *testing.T) {
	ctx := context.Background()
	r := NewStore().Repos()
	_, err := r.Vaults().Create(ctx, &models.Vault{ID: "v1"})
	require.NoError(t, err)

	require.NoError(t, r.Executions().Create(ctx, &models.Execution{ID: "e1", VaultID: "v1", DestinationFolder: "/SL1/"}))
	require.NoError(t, r.Executions().Create(ctx, &models.Execution{ID: "e1", VaultID: "v1", DestinationFolder: "/other/"}))
	e, err := r.Executions().Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "/SL1/", e.DestinationFolder)

	assert.ErrorIs(t, r.Executions().Create(ctx, &models.Execution{ID: "e2", VaultID: "nope"}), common.ErrorNotFound)
}
