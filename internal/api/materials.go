package api

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// uploadMaterial stores a supporting document (resume, certificate) for the
// project. Materials are attached to every draft the project generates.
// Content is base64 so binary files like PDFs survive the JSON payload.
func (s *Server) uploadMaterial(c echo.Context) error {
	user := CurrentUser(c)
	var req struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid material payload")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "material filename is required")
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "material content must be base64")
	}
	if len(content) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "material content is empty")
	}

	if err := s.projects.AddMaterial(user.ID, c.Param("project"), req.Filename, content); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "saved"})
}

func (s *Server) listMaterials(c echo.Context) error {
	user := CurrentUser(c)
	names, err := s.projects.MaterialNames(user.ID, c.Param("project"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"materials": names})
}

func (s *Server) removeMaterial(c echo.Context) error {
	user := CurrentUser(c)
	err := s.projects.RemoveMaterial(user.ID, c.Param("project"), c.Param("filename"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}
