package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/keepotp/internal/common"
	"github.com/dmitrijs2005/keepotp/internal/server/auth"
)

const ctxKeyUserID = "userID"

// authRequired validates the bearer token and stores the user id on the
// echo context.
func (s *Server) authRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(common.AuthHeaderName)
		authType, token, found := strings.Cut(header, " ")
		if !found || authType != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		userID, err := auth.GetUserIDFromToken(token, s.secret)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		c.Set(ctxKeyUserID, userID)
		return next(c)
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(ctxKeyUserID).(string)
	return id
}
