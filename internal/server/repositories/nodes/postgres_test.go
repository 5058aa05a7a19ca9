package nodes

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/google/go-cmp/cmp"
)

var columns = []string{"id", "owner_kind", "owner_id", "name", "path", "is_file", "size", "content_type",
	"content_hash", "execution_id", "object_key", "hold_status", "source_vault_id", "source_file_id",
	"child_count", "scoped_cases", "version", "created_at", "updated_at", "object_version"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGet_ScansLeafWithScopedCases(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM catalog_nodes\s+WHERE owner_kind = \$1 AND owner_id = \$2 AND path = \$3 AND name = \$4`).
		WithArgs("vault", "v1", "/SL1/", "a.txt").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"n1", "vault", "v1", "a.txt", "/SL1/", true, int64(12), "text/plain", "abc",
			"e1", "obj/a.txt", "applied", "", "", int64(0), []byte(`[{"case_id":"c1","case_name":"SL1"}]`),
			int64(3), now, now, "v7"))

	got, err := repo.Get(context.Background(), models.VaultOwner("v1"), "/SL1/", "a.txt")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	want := &models.Node{
		ID: "n1", Owner: models.VaultOwner("v1"), Name: "a.txt", Path: "/SL1/", IsFile: true, Size: 12,
		ContentType: "text/plain", ContentHash: "abc", ExecutionID: "e1", ObjectKey: "obj/a.txt", ObjectVersion: "v7",
		HoldStatus: models.HoldApplied, ScopedCases: []models.ScopedCase{{CaseID: "c1", CaseName: "SL1"}},
		Version: 3, CreatedAt: now, UpdatedAt: now,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("node mismatch (-want +got):\n%s", diff)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM catalog_nodes`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), models.CaseOwner("c1"), "x")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestListChildren_SkipsEmptyFolders(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM catalog_nodes.*name > \$4 AND \(is_file OR child_count > 0\).*ORDER BY name.*LIMIT \$5`).
		WithArgs("case", "c1", "/", "", 100).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("f1", "case", "c1", "a", "/", false, int64(0), "", "", "", "", "none", "", "", int64(2), []byte(`[]`), int64(1), now, now, "").
			AddRow("l1", "case", "c1", "b.txt", "/", true, int64(5), "", "", "", "", "none", "v1", "n9", int64(0), []byte(`[]`), int64(1), now, now, ""))

	got, err := repo.ListChildren(context.Background(), models.CaseOwner("c1"), "/", "", 100)
	if err != nil {
		t.Fatalf("ListChildren error: %v", err)
	}
	if len(got) != 2 || got[0].IsFile || !got[1].IsFile || got[1].SourceFileID != "n9" {
		t.Fatalf("unexpected children: %+v", got)
	}
}

func TestListChildren_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM catalog_nodes`).WillReturnError(errors.New("db down"))

	_, err := repo.ListChildren(context.Background(), models.CaseOwner("c1"), "/", "", 10)
	if err == nil || !regexp.MustCompile(`failed to select nodes: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestListByCreation_UsesCursor(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`\(created_at, id\) > \(\$3, \$4\)`).
		WithArgs("vault", "v1", at, "n1", 2).
		WillReturnRows(sqlmock.NewRows(columns))

	got, err := repo.ListByCreation(context.Background(), models.VaultOwner("v1"), &CreationCursor{CreatedAt: at, ID: "n1"}, 2)
	if err != nil || len(got) != 0 {
		t.Fatalf("unexpected: %v, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertFolder_ReportsCreated(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)INSERT INTO catalog_nodes.*ON CONFLICT \(owner_kind, owner_id, path, name\) DO NOTHING`
	mock.ExpectExec(q).WithArgs(sqlmock.AnyArg(), "vault", "v1", "SL1", "/").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(sqlmock.AnyArg(), "vault", "v1", "SL1", "/").WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.InsertFolder(context.Background(), models.VaultOwner("v1"), "/", "SL1")
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	created, err = repo.InsertFolder(context.Background(), models.VaultOwner("v1"), "/", "SL1")
	if err != nil || created {
		t.Fatalf("second insert: created=%v err=%v", created, err)
	}
}

func TestInsertLeaf(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)INSERT INTO catalog_nodes.*ON CONFLICT .* DO NOTHING\s+RETURNING created_at, updated_at`
	mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)

	n := &models.Node{Owner: models.VaultOwner("v1"), Path: "/", Name: "a.txt", HoldStatus: models.HoldPending}
	if err := repo.InsertLeaf(context.Background(), n); err != nil {
		t.Fatalf("InsertLeaf error: %v", err)
	}
	if n.ID == "" || n.Version != 1 || !n.IsFile {
		t.Fatalf("unexpected node after insert: %+v", n)
	}

	dup := &models.Node{Owner: models.VaultOwner("v1"), Path: "/", Name: "a.txt"}
	if err := repo.InsertLeaf(context.Background(), dup); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
}

func TestUpdateLeaf_Versioned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `UPDATE catalog_nodes SET size = \$3.*WHERE id = \$1 AND version = \$2 AND is_file`
	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))

	n := &models.Node{ID: "n1", Version: 4, Size: 10}
	if err := repo.UpdateLeaf(context.Background(), n); err != nil {
		t.Fatalf("UpdateLeaf error: %v", err)
	}
	if n.Version != 5 {
		t.Fatalf("version = %d, want 5", n.Version)
	}
	if err := repo.UpdateLeaf(context.Background(), n); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	if n.Version != 5 {
		t.Fatalf("version changed on conflict: %d", n.Version)
	}
}

func TestAddChildCount_MissingFolder(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE catalog_nodes SET child_count = child_count \+ \$5`).
		WithArgs("case", "c1", "/", "a", int64(-1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddChildCount(context.Background(), models.CaseOwner("c1"), "/", "a", -1)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestDeleteLeafAndFolder(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM catalog_nodes WHERE id = \$1 AND version = \$2 AND is_file`).
		WithArgs("n1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)DELETE FROM catalog_nodes.*NOT is_file AND child_count = 0`).
		WithArgs("case", "c1", "/a/", "b").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteLeaf(context.Background(), &models.Node{ID: "n1", Version: 2}); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	deleted, err := repo.DeleteFolderIfEmpty(context.Background(), models.CaseOwner("c1"), "/a/", "b")
	if err != nil || !deleted {
		t.Fatalf("DeleteFolderIfEmpty: deleted=%v err=%v", deleted, err)
	}
}

func TestSetScopedCases_MarshalsEmptySet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE catalog_nodes SET scoped_cases = \$3`).
		WithArgs("n1", int64(1), "[]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &models.Node{ID: "n1", Version: 1}
	if err := repo.SetScopedCases(context.Background(), n); err != nil {
		t.Fatalf("SetScopedCases error: %v", err)
	}
	if n.Version != 2 {
		t.Fatalf("version = %d", n.Version)
	}
}

func TestSetContentHash_FirstWriterWins(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `UPDATE catalog_nodes SET content_hash = \$2.*WHERE id = \$1 AND content_hash = ''`
	mock.ExpectExec(q).WithArgs("n1", "h1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("n1", "h2").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SetContentHash(context.Background(), "n1", "h1")
	if err != nil || !ok {
		t.Fatalf("first write: ok=%v err=%v", ok, err)
	}
	ok, err = repo.SetContentHash(context.Background(), "n1", "h2")
	if err != nil || ok {
		t.Fatalf("second write: ok=%v err=%v", ok, err)
	}
}

func TestInsertLeaf_ConflictOnEmptyReturning(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// ON CONFLICT DO NOTHING returns no row for the losing writer
	mock.ExpectQuery(`(?s)INSERT INTO catalog_nodes.*object_version, version\).*ON CONFLICT \(owner_kind, owner_id, path, name\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "vault", "v1", "a.txt", "/", int64(4), "", "", "e1", "obj/a.txt", "pending", "", "", "[]", "v2").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))

	n := &models.Node{Owner: models.VaultOwner("v1"), Path: "/", Name: "a.txt", Size: 4, ExecutionID: "e1",
		ObjectKey: "obj/a.txt", ObjectVersion: "v2", HoldStatus: models.HoldPending}
	if err := repo.InsertLeaf(context.Background(), n); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	if n.Version != 0 || n.IsFile {
		t.Fatalf("node changed on conflict: %+v", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateLeaf_WritesObjectVersion(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE catalog_nodes SET .*object_version = \$11.*WHERE id = \$1 AND version = \$2`).
		WithArgs("n1", int64(2), int64(9), "", "", "", "k", "pending", "", "", "v3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &models.Node{ID: "n1", Version: 2, Size: 9, ObjectKey: "k", ObjectVersion: "v3", HoldStatus: models.HoldPending}
	if err := repo.UpdateLeaf(context.Background(), n); err != nil {
		t.Fatalf("UpdateLeaf error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetScopedCases_StaleVersion(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE catalog_nodes SET scoped_cases = \$3.*WHERE id = \$1 AND version = \$2`).
		WithArgs("n1", int64(3), `[{"case_id":"c1","case_name":"SL1"}]`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n := &models.Node{ID: "n1", Version: 3, ScopedCases: []models.ScopedCase{{CaseID: "c1", CaseName: "SL1"}}}
	if err := repo.SetScopedCases(context.Background(), n); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	if n.Version != 3 {
		t.Fatalf("version changed on conflict: %d", n.Version)
	}
}

func TestDeleteLeaf_StaleVersionThenDriverError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `DELETE FROM catalog_nodes WHERE id = \$1 AND version = \$2 AND is_file`
	mock.ExpectExec(q).WithArgs("n1", int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("n1", int64(6)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("n1", int64(7)).WillReturnError(errors.New("conn reset"))

	if err := repo.DeleteLeaf(context.Background(), &models.Node{ID: "n1", Version: 5}); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	if err := repo.DeleteLeaf(context.Background(), &models.Node{ID: "n1", Version: 6}); err != nil {
		t.Fatalf("DeleteLeaf error: %v", err)
	}
	err := repo.DeleteLeaf(context.Background(), &models.Node{ID: "n1", Version: 7})
	if err == nil || errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want wrapped driver error, got %v", err)
	}
}

func TestSetHoldStatusAndCaseHashes(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `UPDATE catalog_nodes SET hold_status = \$2.*WHERE id = \$1 AND object_version = \$3`
	mock.ExpectExec(q).WithArgs("n1", "applied", "v1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("n1", "applied", "v1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)UPDATE catalog_nodes SET content_hash = \$2.*owner_kind = 'case' AND source_file_id = \$1`).
		WithArgs("n1", "h1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.SetHoldStatus(context.Background(), "n1", "v1", models.HoldApplied); err != nil {
		t.Fatalf("SetHoldStatus error: %v", err)
	}
	// the leaf moved on to another object version
	if err := repo.SetHoldStatus(context.Background(), "n1", "v1", models.HoldApplied); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	if err := repo.SetCaseFileHashes(context.Background(), "n1", "h1"); err != nil {
		t.Fatalf("SetCaseFileHashes error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
