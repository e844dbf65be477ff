// Package httpapi exposes the sensor registry and the vault management
// operations over HTTP, and serves the embedded browser widget.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/dmitrijs2005/keepotp/internal/logging"
	"github.com/dmitrijs2005/keepotp/internal/server/config"
	"github.com/dmitrijs2005/keepotp/internal/server/scanner"
	"github.com/dmitrijs2005/keepotp/internal/server/sensors"
	"github.com/dmitrijs2005/keepotp/internal/server/services"
)

type Server struct {
	echo     *echo.Echo
	users    *services.UserService
	vaults   *services.VaultService
	registry *sensors.Registry
	scanner  *scanner.Scanner
	config   *config.Config
	logger   logging.Logger
	secret   []byte
}

func NewServer(cfg *config.Config, users *services.UserService, vaults *services.VaultService,
	registry *sensors.Registry, sc *scanner.Scanner, logger logging.Logger) *Server {

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())

	s := &Server{
		echo:     e,
		users:    users,
		vaults:   vaults,
		registry: registry,
		scanner:  sc,
		config:   cfg,
		logger:   logger.With("module", "httpapi"),
		secret:   []byte(cfg.SecretKey),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleWidget)
	s.echo.POST("/api/auth/register", s.handleRegister)
	s.echo.POST("/api/auth/login", s.handleLogin)
	s.echo.GET("/api/ws", s.handleWS)

	g := s.echo.Group("/api", s.authRequired)
	g.POST("/vaults/import", s.handleVaultImport)
	g.GET("/vaults", s.handleVaultList)
	g.DELETE("/vaults/:id", s.handleVaultDelete)
	g.GET("/vaults/:id/snapshot", s.handleVaultSnapshot)
	g.GET("/sensors", s.handleSensorList)
	g.GET("/sensors/:key", s.handleSensorGet)
	g.GET("/sensors/:key/token", s.handleSensorToken)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.config.EndpointAddrHTTP); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.echo.Shutdown(context.Background())
	}
}
