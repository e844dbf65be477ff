package httpapi

import (
	"embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed widget/index.html
var widgetFS embed.FS

func (s *Server) handleWidget(c echo.Context) error {
	page, err := widgetFS.ReadFile("widget/index.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "widget unavailable")
	}
	return c.HTMLBlob(http.StatusOK, page)
}
