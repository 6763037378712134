package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/applydraft/pkg/models"
)

func (s *Server) listProjects(c echo.Context) error {
	user := CurrentUser(c)
	names, err := s.projects.List(user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	type projectSummary struct {
		Name      string `json:"name"`
		Generated int    `json:"generated"`
	}
	summaries := make([]projectSummary, 0, len(names))
	for _, name := range names {
		rows, err := s.projects.TrackerRows(user.ID, name)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		count := 0
		for _, row := range rows {
			if row.Status == models.TrackerStatusGenerated {
				count++
			}
		}
		summaries = append(summaries, projectSummary{Name: name, Generated: count})
	}
	return c.JSON(http.StatusOK, map[string]any{"projects": summaries})
}

func (s *Server) createProject(c echo.Context) error {
	user := CurrentUser(c)
	var cfg models.ProjectConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid project payload")
	}
	if strings.TrimSpace(cfg.ProjectName) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_name is required")
	}

	created, err := s.projects.Create(user.ID, cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) getProject(c echo.Context) error {
	user := CurrentUser(c)
	name := c.Param("project")
	if !s.projects.Exists(user.ID, name) {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	cfg, err := s.projects.Config(user.ID, name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) updateProject(c echo.Context) error {
	user := CurrentUser(c)
	name := c.Param("project")
	if !s.projects.Exists(user.ID, name) {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}

	var cfg models.ProjectConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid project payload")
	}
	// the directory name is fixed at creation
	cfg.ProjectName = name

	if err := s.projects.SaveConfig(user.ID, name, cfg); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) deleteProject(c echo.Context) error {
	user := CurrentUser(c)
	if err := s.projects.Delete(user.ID, c.Param("project")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getInstructions(c echo.Context) error {
	user := CurrentUser(c)
	text, err := s.projects.Instructions(user.ID, c.Param("project"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"instructions": text})
}

func (s *Server) putInstructions(c echo.Context) error {
	user := CurrentUser(c)
	var req struct {
		Instructions string `json:"instructions"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := s.projects.SaveInstructions(user.ID, c.Param("project"), req.Instructions); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "saved"})
}

// generateInstructions derives search instructions from the project's job
// requirements and stores them.
func (s *Server) generateInstructions(c echo.Context) error {
	user := CurrentUser(c)
	name := c.Param("project")
	cfg, err := s.projects.Config(user.ID, name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	if strings.TrimSpace(cfg.JobRequirements) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project has no job requirements")
	}

	identity := models.Identity{Name: cfg.Name, Phone: cfg.Phone, Email: user.Email}
	text, usage, err := s.synth.GenerateInstructions(c.Request().Context(), cfg.JobRequirements, identity)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if err := s.projects.SaveInstructions(user.ID, name, text); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	logUsage(s, user.ID, name, "template", usage)

	return c.JSON(http.StatusOK, map[string]any{
		"instructions": text,
		"token_usage":  usage,
	})
}

func (s *Server) addDocumentType(c echo.Context) error {
	user := CurrentUser(c)
	var dt models.DocumentType
	if err := c.Bind(&dt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document type payload")
	}
	if strings.TrimSpace(dt.ID) == "" || strings.TrimSpace(dt.Label) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id and label are required")
	}
	if err := s.projects.AddDocumentType(user.ID, c.Param("project"), dt); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusCreated, dt)
}

func (s *Server) removeDocumentType(c echo.Context) error {
	user := CurrentUser(c)
	if err := s.projects.RemoveDocumentType(user.ID, c.Param("project"), c.Param("type")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
