package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/applydraft/pkg/models"
)

func (s *Server) getTracker(c echo.Context) error {
	user := CurrentUser(c)
	rows, err := s.projects.TrackerRows(user.ID, c.Param("project"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if rows == nil {
		rows = []models.TrackerRow{}
	}
	return c.JSON(http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) getUsage(c echo.Context) error {
	user := CurrentUser(c)
	perOp, total, err := s.projects.UsageTotals(user.ID, c.Param("project"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"per_operation": perOp,
		"total":         total,
	})
}
