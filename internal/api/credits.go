package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

func (s *Server) getCredits(c echo.Context) error {
	user := CurrentUser(c)
	balance, err := s.credits.GetBalance(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"balance": balance})
}

func (s *Server) getCreditHistory(c echo.Context) error {
	user := CurrentUser(c)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	history, err := s.credits.History(c.Request().Context(), user.ID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"transactions": history})
}

// addCredits records a credit purchase. Payment capture happens upstream;
// this endpoint only applies the grant.
func (s *Server) addCredits(c echo.Context) error {
	user := CurrentUser(c)
	var req struct {
		Amount      float64 `json:"amount"`
		Description string  `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid credits payload")
	}
	if req.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	if req.Description == "" {
		req.Description = "credit purchase"
	}

	balance, err := s.credits.AddCredits(c.Request().Context(), user.ID, req.Amount, req.Description)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"balance": balance})
}
