package httpapi

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/keepotp/internal/common"
	"github.com/dmitrijs2005/keepotp/internal/filex"
	"github.com/dmitrijs2005/keepotp/internal/kdbx"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type vaultResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	EntryCount  int       `json:"entry_count"`
	HasSnapshot bool      `json:"has_snapshot"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	u, err := s.users.Register(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return echo.NewHTTPError(http.StatusBadRequest, "username and password required")
		}
		if errors.Is(err, common.ErrorAlreadyExists) {
			return echo.NewHTTPError(http.StatusConflict, "username taken")
		}
		s.logger.Error(c.Request().Context(), "registration failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
	}

	return c.JSON(http.StatusCreated, echo.Map{"id": u.ID, "username": u.UserName})
}

func (s *Server) handleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	token, err := s.users.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	return c.JSON(http.StatusOK, echo.Map{"access_token": token})
}

// handleVaultImport accepts a multipart upload: the database file under
// "database", an optional key file under "keyfile", plus the form
// fields name, password and snapshot. The uploaded files are staged in
// the import scratch directory and destroyed by the service after
// extraction, success or not.
func (s *Server) handleVaultImport(c echo.Context) error {
	ctx := c.Request().Context()

	dbHeader, err := c.FormFile("database")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "database file required")
	}
	dbName, err := s.stageUpload(dbHeader.Filename, dbHeader)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid database file name")
	}

	keyName := ""
	if keyHeader, err := c.FormFile("keyfile"); err == nil {
		if keyName, err = s.stageUpload(keyHeader.Filename, keyHeader); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid key file name")
		}
	}

	name := c.FormValue("name")
	if name == "" {
		name = dbHeader.Filename
	}
	password := c.FormValue("password")
	snapshot := c.FormValue("snapshot") == "true"

	stats, err := s.vaults.Import(ctx, userID(c), name, dbName, keyName, password, snapshot)
	if err != nil {
		switch {
		case errors.Is(err, kdbx.ErrDatabaseNotFound):
			return echo.NewHTTPError(http.StatusBadRequest, "database file not found")
		case errors.Is(err, kdbx.ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusBadRequest, "invalid database credentials")
		case errors.Is(err, kdbx.ErrCorruptDatabase):
			return echo.NewHTTPError(http.StatusBadRequest, "corrupt or unsupported database file")
		case errors.Is(err, common.ErrNoOtpEntries):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "database contains no otp entries")
		}
		s.logger.Error(ctx, "vault import failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "import failed")
	}

	// publish the new sensors right away instead of waiting for the tick
	if s.scanner != nil {
		s.scanner.Scan(ctx)
	}

	return c.JSON(http.StatusCreated, stats)
}

func (s *Server) handleVaultList(c echo.Context) error {
	list, err := s.vaults.List(c.Request().Context(), userID(c))
	if err != nil {
		s.logger.Error(c.Request().Context(), "vault list failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "listing vaults failed")
	}

	out := make([]vaultResponse, 0, len(list))
	for _, v := range list {
		out = append(out, vaultResponse{
			ID:          v.ID,
			Name:        v.Name,
			EntryCount:  v.EntryCount,
			HasSnapshot: v.SnapshotKey != "",
			CreatedAt:   v.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleVaultDelete(c echo.Context) error {
	ctx := c.Request().Context()
	vaultID := c.Param("id")

	if err := s.vaults.Delete(ctx, userID(c), vaultID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "vault not found")
		}
		s.logger.Error(ctx, "vault delete failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "deleting vault failed")
	}

	s.registry.Drop(userID(c), vaultID)
	if s.scanner != nil {
		s.scanner.Invalidate(vaultID)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleVaultSnapshot(c echo.Context) error {
	url, err := s.vaults.SnapshotURL(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no snapshot for vault")
		}
		s.logger.Error(c.Request().Context(), "snapshot url failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "snapshot export failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

func (s *Server) handleSensorList(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.List(userID(c)))
}

func (s *Server) handleSensorGet(c echo.Context) error {
	state, ok := s.registry.Get(userID(c), c.Param("key"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "sensor not found")
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) handleSensorToken(c echo.Context) error {
	code, ok := s.registry.Token(userID(c), c.Param("key"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "sensor not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"token": code})
}

func (s *Server) stageUpload(filename string, header *multipart.FileHeader) (string, error) {
	dst, err := filex.ResolveInside(s.config.ImportDir, filename)
	if err != nil {
		return "", err
	}

	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", err
	}
	return filename, nil
}
