package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/keepotp/internal/common"
	"github.com/dmitrijs2005/keepotp/internal/dbx"
	"github.com/dmitrijs2005/keepotp/internal/logging"
	"github.com/dmitrijs2005/keepotp/internal/server/models"
	"github.com/dmitrijs2005/keepotp/internal/server/repositories/users"
	"github.com/dmitrijs2005/keepotp/internal/server/repositories/vaults"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeUserRepo struct {
	mu     sync.Mutex
	byName map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byName: make(map[string]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[user.UserName]; exists {
		return nil, common.ErrorAlreadyExists
	}
	user.ID = uuid.NewString()
	r.byName[user.UserName] = user
	return user, nil
}

func (r *fakeUserRepo) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byName[login]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeVaultRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Vault
}

func newFakeVaultRepo() *fakeVaultRepo {
	return &fakeVaultRepo{byID: make(map[string]*models.Vault)}
}

func (r *fakeVaultRepo) Create(ctx context.Context, vault *models.Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[vault.ID] = vault
	return nil
}

func (r *fakeVaultRepo) GetByID(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[vaultID]
	if !ok || v.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return v, nil
}

func (r *fakeVaultRepo) ListByUser(ctx context.Context, userID string) ([]*models.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Vault
	for _, v := range r.byID {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeVaultRepo) ListAll(ctx context.Context) ([]*models.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Vault
	for _, v := range r.byID {
		out = append(out, v)
	}
	return out, nil
}

func (r *fakeVaultRepo) Delete(ctx context.Context, userID, vaultID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[vaultID]
	if !ok || v.UserID != userID {
		return common.ErrorNotFound
	}
	delete(r.byID, vaultID)
	return nil
}

func (r *fakeVaultRepo) SetSnapshotKey(ctx context.Context, userID, vaultID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[vaultID]
	if !ok || v.UserID != userID {
		return common.ErrorNotFound
	}
	v.SnapshotKey = key
	return nil
}

func vaultFixture(id, userID string) *models.Vault {
	return &models.Vault{
		ID:         id,
		UserID:     userID,
		Name:       "fixture",
		Blob:       []byte("blob"),
		Nonce:      []byte("nonce"),
		Salt:       []byte("salt"),
		EntryCount: 1,
	}
}

type fakeRepoManager struct {
	users  *fakeUserRepo
	vaults *fakeVaultRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{users: newFakeUserRepo(), vaults: newFakeVaultRepo()}
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository { return m.users }

func (m *fakeRepoManager) Vaults(db dbx.DBTX) vaults.Repository { return m.vaults }
