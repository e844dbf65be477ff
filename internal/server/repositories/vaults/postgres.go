// Package vaults provides PostgreSQL-backed storage for imported vault
// records: the sealed descriptor blobs and their metadata.
package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keepotp/internal/common"
	"github.com/dmitrijs2005/keepotp/internal/dbx"
	"github.com/dmitrijs2005/keepotp/internal/server/models"
)

// PostgresRepository implements vault storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, vault *models.Vault) error {
	query := `
		INSERT INTO vaults (id, user_id, name, blob, nonce, salt, snapshot_key, entry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := r.db.ExecContext(ctx, query,
		vault.ID, vault.UserID, vault.Name, vault.Blob, vault.Nonce, vault.Salt,
		vault.SnapshotKey, vault.EntryCount)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	query := `
		SELECT id, user_id, name, blob, nonce, salt, snapshot_key, entry_count, created_at
		FROM vaults WHERE user_id = $1 AND id = $2
	`
	v := &models.Vault{}
	err := r.db.QueryRowContext(ctx, query, userID, vaultID).Scan(
		&v.ID, &v.UserID, &v.Name, &v.Blob, &v.Nonce, &v.Salt,
		&v.SnapshotKey, &v.EntryCount, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Vault, error) {
	query := `
		SELECT id, user_id, name, blob, nonce, salt, snapshot_key, entry_count, created_at
		FROM vaults WHERE user_id = $1 ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	return scanVaults(rows)
}

// ListAll returns every vault in the store. The scanner uses it at
// startup and after imports to know what to publish.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.Vault, error) {
	query := `
		SELECT id, user_id, name, blob, nonce, salt, snapshot_key, entry_count, created_at
		FROM vaults ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	return scanVaults(rows)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, vaultID string) error {
	query := `DELETE FROM vaults WHERE user_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, vaultID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetSnapshotKey(ctx context.Context, userID, vaultID, key string) error {
	query := `UPDATE vaults SET snapshot_key = $3 WHERE user_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, vaultID, key)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func scanVaults(rows *sql.Rows) ([]*models.Vault, error) {
	var result []*models.Vault
	for rows.Next() {
		var v models.Vault
		if err := rows.Scan(
			&v.ID, &v.UserID, &v.Name, &v.Blob, &v.Nonce, &v.Salt,
			&v.SnapshotKey, &v.EntryCount, &v.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
