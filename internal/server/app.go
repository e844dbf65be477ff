// Package server assembles and runs the keepotp service: database and
// migrations, the scan loop, the sensor registry and the HTTP API with
// the embedded widget.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/keepotp/internal/filex"
	"github.com/dmitrijs2005/keepotp/internal/logging"
	"github.com/dmitrijs2005/keepotp/internal/server/config"
	"github.com/dmitrijs2005/keepotp/internal/server/httpapi"
	"github.com/dmitrijs2005/keepotp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keepotp/internal/server/scanner"
	"github.com/dmitrijs2005/keepotp/internal/server/sensors"
	"github.com/dmitrijs2005/keepotp/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
}

func NewApp(c *config.Config) *App {
	l := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return &App{config: c, logger: logging.NewSlogLogger(l)}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// addWatches resolves the configured watch-mode databases to user IDs
// and registers them with the scanner. A watch naming an unknown user
// is skipped with a warning rather than failing startup.
func (app *App) addWatches(ctx context.Context, db *sql.DB, m repomanager.RepositoryManager, sc *scanner.Scanner) {
	for _, w := range app.config.Watches {
		u, err := m.Users(db).GetUserByLogin(ctx, w.User)
		if err != nil {
			app.logger.Warn(ctx, "skipping watch for unknown user", "user", w.User, "name", w.Name)
			continue
		}
		sc.AddWatch(scanner.WatchConfig{
			ID:       "watch:" + w.Name,
			UserID:   u.ID,
			Path:     w.Path,
			Password: w.Password,
			KeyFile:  w.KeyFile,
		})
		app.logger.Info(ctx, "watching database", "name", w.Name, "path", w.Path)
	}
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting keepotp server")

	app.initSignalHandler(cancelFunc)

	if _, err := filex.EnsureDir(app.config.ImportDir); err != nil {
		return fmt.Errorf("import dir init error: %w", err)
	}

	db, err := sql.Open("pgx", app.config.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	userService := services.NewUserService(db, m, app.config)
	vaultService := services.NewVaultService(db, m, app.config, app.logger)

	registry := sensors.NewRegistry()
	sc := scanner.New(vaultService, registry, app.config.ScanInterval, app.logger)
	app.addWatches(ctx, db, m, sc)

	srv := httpapi.NewServer(app.config, userService, vaultService, registry, sc, app.logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sc.Run(ctx); err != nil {
			app.logger.Error(ctx, "scanner stopped", "error", err)
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.logger.Info(ctx, "http api listening", "addr", app.config.EndpointAddrHTTP)
		if err := srv.Run(ctx); err != nil {
			app.logger.Error(ctx, "http server stopped", "error", err)
			cancelFunc()
		}
	}()

	wg.Wait()
	return nil
}
