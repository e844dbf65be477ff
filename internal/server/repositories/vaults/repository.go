package vaults

import (
	"context"

	"github.com/dmitrijs2005/keepotp/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, vault *models.Vault) error
	GetByID(ctx context.Context, userID, vaultID string) (*models.Vault, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Vault, error)
	ListAll(ctx context.Context) ([]*models.Vault, error)
	Delete(ctx context.Context, userID, vaultID string) error
	SetSnapshotKey(ctx context.Context, userID, vaultID, key string) error
}
