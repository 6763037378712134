package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/applydraft/internal/billing"
	"github.com/applydraft/internal/discovery"
	"github.com/applydraft/pkg/models"
)

type searchResponse struct {
	Targets     []models.Target      `json:"targets"`
	Skipped     []models.SkippedFirm `json:"skipped,omitempty"`
	ParseError  string               `json:"parse_error,omitempty"`
	TokenUsage  models.TokenUsage    `json:"token_usage"`
	CreditUsage models.CreditUsage   `json:"credit_usage"`
}

// searchTargets runs web-search target discovery. The caller is charged per
// returned target plus token overage; a search that returns nothing costs
// nothing.
func (s *Server) searchTargets(c echo.Context) error {
	user := CurrentUser(c)
	projectName := c.Param("project")

	var req struct {
		Count int `json:"count"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid search payload")
	}
	if req.Count <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "count must be positive")
	}
	count := discovery.ClampCount(req.Count)

	cfg, err := s.projects.Config(user.ID, projectName)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	if cfg.JobRequirements == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project has no job requirements")
	}

	// fail before any model call when credits cannot cover the minimum
	balance, err := s.credits.GetBalance(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if balance < billing.SearchCost(count) {
		return echo.NewHTTPError(http.StatusPaymentRequired, "insufficient credits for this search")
	}

	instructions, err := s.projects.Instructions(user.ID, projectName)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	excluded, err := s.projects.TrackedFirms(user.ID, projectName)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	typeIDs := make([]string, len(cfg.DocumentTypes))
	for i, dt := range cfg.DocumentTypes {
		typeIDs[i] = dt.ID
	}

	result, err := s.searcher.Search(c.Request().Context(), discovery.Request{
		Instructions: instructions,
		Definitions:  s.projects.CombinedDefinitions(user.ID, projectName, typeIDs),
		Requirements: cfg.JobRequirements,
		Count:        count,
		Excluded:     excluded,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	resp := searchResponse{
		Targets:    result.Targets,
		Skipped:    result.Skipped,
		ParseError: result.Err,
		TokenUsage: result.Usage,
	}
	if resp.Targets == nil {
		resp.Targets = []models.Target{}
	}

	charge := billing.SearchCharge(count, len(result.Targets), result.Usage)
	resp.CreditUsage = models.CreditUsage{
		Base:        charge.Base,
		Overage:     charge.Overage,
		Total:       charge.Total,
		LimitTokens: charge.LimitTokens,
	}
	if charge.Total > 0 {
		desc := fmt.Sprintf("search %s: %d targets (base=%.3f, overage=%.3f)",
			projectName, len(result.Targets), charge.Base, charge.Overage)
		newBalance, err := s.credits.Charge(c.Request().Context(), user.ID, charge.Total, desc)
		if err != nil {
			resp.CreditUsage.Error = err.Error()
		} else {
			resp.CreditUsage.Balance = newBalance
		}
	}

	logUsage(s, user.ID, projectName, "search", result.Usage)

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getTargets(c echo.Context) error {
	user := CurrentUser(c)
	targets, err := s.projects.Targets(user.ID, c.Param("project"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if targets == nil {
		targets = []models.Target{}
	}
	return c.JSON(http.StatusOK, map[string]any{"targets": targets})
}
