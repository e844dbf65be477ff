package vaults

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/keepotp/internal/common"
	"github.com/dmitrijs2005/keepotp/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func vaultColumns() []string {
	return []string{"id", "user_id", "name", "blob", "nonce", "salt", "snapshot_key", "entry_count", "created_at"}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+vaults`).
		WithArgs("v-1", "u-1", "work", []byte("blob"), []byte("nonce"), []byte("salt"), "", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.Vault{
		ID: "v-1", UserID: "u-1", Name: "work",
		Blob: []byte("blob"), Nonce: []byte("nonce"), Salt: []byte("salt"),
		EntryCount: 3,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+vaults`).
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.Vault{ID: "v-1"})
	assert.ErrorContains(t, err, "db error")
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(vaultColumns()).
		AddRow("v-1", "u-1", "work", []byte("blob"), []byte("nonce"), []byte("salt"), "snap", 3, now)
	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+vaults\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+id\s*=\s*\$2`).
		WithArgs("u-1", "v-1").
		WillReturnRows(rows)

	v, err := repo.GetByID(context.Background(), "u-1", "v-1")
	require.NoError(t, err)
	assert.Equal(t, "work", v.Name)
	assert.Equal(t, 3, v.EntryCount)
	assert.Equal(t, "snap", v.SnapshotKey)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+vaults`).
		WithArgs("u-1", "ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "u-1", "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(vaultColumns()).
		AddRow("v-1", "u-1", "work", []byte("b1"), []byte("n1"), []byte("s1"), "", 2, now).
		AddRow("v-2", "u-1", "home", []byte("b2"), []byte("n2"), []byte("s2"), "", 1, now)
	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+vaults\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs("u-1").
		WillReturnRows(rows)

	got, err := repo.ListByUser(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "home", got[1].Name)
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*DELETE\s+FROM\s+vaults`).
		WithArgs("u-1", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "u-1", "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*DELETE\s+FROM\s+vaults`).
		WithArgs("u-1", "v-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "u-1", "v-1"))
}

func TestSetSnapshotKey(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*UPDATE\s+vaults\s+SET\s+snapshot_key`).
		WithArgs("u-1", "v-1", "snapshots/v-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetSnapshotKey(context.Background(), "u-1", "v-1", "snapshots/v-1"))
}
