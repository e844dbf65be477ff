// Package cli implements the interactive keepotp client: a small REPL
// for registering, importing databases and reading codes.
package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/dmitrijs2005/keepotp/internal/client/api"
	"github.com/dmitrijs2005/keepotp/internal/client/config"
)

// apiClient is the slice of the HTTP client the REPL needs. Tests
// substitute a fake.
type apiClient interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, error)
	ImportVault(ctx context.Context, name, databasePath, keyFilePath string, password []byte, snapshot bool) (*api.ImportResult, error)
	ListVaults(ctx context.Context) ([]api.VaultInfo, error)
	DeleteVault(ctx context.Context, vaultID string) error
	ListSensors(ctx context.Context) ([]api.SensorState, error)
	SensorToken(ctx context.Context, key string) (string, error)
	SnapshotURL(ctx context.Context, vaultID string) (string, error)
}

type App struct {
	config   *config.Config
	api      apiClient
	userName string
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(c *config.Config) *App {
	return &App{
		config: c,
		api:    api.NewClient(c.ServerURL, c.RequestTimeout),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

func (a *App) Run(ctx context.Context) {
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}
