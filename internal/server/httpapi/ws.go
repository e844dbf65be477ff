package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/keepotp/internal/common"
	"github.com/dmitrijs2005/keepotp/internal/server/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWS streams the caller's sensor snapshot on every refresh tick.
// Browsers cannot set headers on websocket dials, so the access token
// travels in the query string instead of the Authorization header.
func (s *Server) handleWS(c echo.Context) error {
	token := c.QueryParam(common.AuthQueryParam)
	uid, err := auth.GetUserIDFromToken(token, s.secret)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error(c.Request().Context(), "websocket upgrade failed", "error", err)
		return err
	}
	defer ws.Close()

	ctx := c.Request().Context()

	snapshots, cancel := s.registry.Subscribe(uid)
	defer cancel()

	// current state first, ticks after
	if err := ws.WriteJSON(s.registry.List(uid)); err != nil {
		return nil
	}

	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return nil
		case snap := <-snapshots:
			if err := ws.WriteJSON(snap); err != nil {
				return nil
			}
		}
	}
}
