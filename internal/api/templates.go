package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/applydraft/internal/fill"
	"github.com/applydraft/internal/template"
	"github.com/applydraft/pkg/models"
)

type templatePayload struct {
	Body        string                    `json:"body"`
	Definitions []template.SlotDefinition `json:"definitions"`
}

func (s *Server) getTemplate(c echo.Context) error {
	user := CurrentUser(c)
	tmpl, err := s.projects.Template(user.ID, c.Param("project"), c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, templatePayload{Body: tmpl.Body, Definitions: tmpl.Definitions})
}

func (s *Server) putTemplate(c echo.Context) error {
	user := CurrentUser(c)
	var req templatePayload
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template payload")
	}
	if strings.TrimSpace(req.Body) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template body is required")
	}

	tmpl := &template.Template{Body: req.Body, Definitions: req.Definitions}
	if err := tmpl.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := s.projects.SaveTemplate(user.ID, c.Param("project"), c.Param("type"), tmpl); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) addExample(c echo.Context) error {
	user := CurrentUser(c)
	var req struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid example payload")
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "example content is required")
	}
	if req.Filename == "" {
		req.Filename = "example.txt"
	}

	if err := s.projects.AddExample(user.ID, c.Param("project"), c.Param("type"), req.Filename, req.Content); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "saved"})
}

func (s *Server) listExamples(c echo.Context) error {
	user := CurrentUser(c)
	names, err := s.projects.ExampleNames(user.ID, c.Param("project"), c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"examples": names})
}

func (s *Server) removeExample(c echo.Context) error {
	user := CurrentUser(c)
	err := s.projects.RemoveExample(user.ID, c.Param("project"), c.Param("type"), c.Param("filename"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}

// synthesizeTemplate runs template synthesis over the stored examples and
// saves the result. A response the model could not structure cleanly is
// still saved, flagged for manual editing.
func (s *Server) synthesizeTemplate(c echo.Context) error {
	user := CurrentUser(c)
	projectName := c.Param("project")
	typeID := c.Param("type")

	cfg, err := s.projects.Config(user.ID, projectName)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}

	examples, err := s.projects.Examples(user.ID, projectName, typeID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(examples) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no examples uploaded for this document type")
	}

	label := typeID
	for _, dt := range cfg.DocumentTypes {
		if dt.ID == typeID {
			label = dt.Label
		}
	}

	var result *template.SynthesisResult
	if typeID == models.EmailBodyTypeID {
		result, err = s.synth.SynthesizeEmail(c.Request().Context(), examples[0])
	} else {
		result, err = s.synth.Synthesize(c.Request().Context(), examples, label)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	tmpl := &template.Template{Body: result.Body, Definitions: template.ParseDefinitions(result.Definitions)}
	if err := s.projects.SaveTemplate(user.ID, projectName, typeID, tmpl); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	logUsage(s, user.ID, projectName, "template", result.Usage)

	return c.JSON(http.StatusOK, map[string]any{
		"body":                 result.Body,
		"definitions":          result.Definitions,
		"manual_edit_required": result.ManualEditRequired,
		"token_usage":          result.Usage,
	})
}

// previewTemplate fills the stored template with a caller-provided target
// and no model calls, so users can check a template before spending credits.
func (s *Server) previewTemplate(c echo.Context) error {
	user := CurrentUser(c)
	projectName := c.Param("project")

	var req struct {
		Target models.Target     `json:"target"`
		Custom map[string]string `json:"custom"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid preview payload")
	}
	if req.Target.Firm == "" {
		req.Target = models.Target{Firm: "Example Organization", Position: "Example Position", Location: "Example City"}
	}

	cfg, err := s.projects.Config(user.ID, projectName)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	tmpl, err := s.projects.Template(user.ID, projectName, c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	custom := make(map[string]string)
	for _, def := range tmpl.Definitions {
		custom[def.Name] = "[" + def.Name + "]"
		if def.Example != "" {
			custom[def.Name] = def.Example
		}
	}
	for k, v := range req.Custom {
		custom[strings.ToUpper(k)] = v
	}

	in := fill.Inputs{
		Identity: models.Identity{Name: cfg.Name, Phone: cfg.Phone, Email: user.Email},
		Target:   req.Target,
		Custom:   custom,
	}
	filled := fill.Fill(tmpl.Body, in)
	html := filled
	if !fill.IsHTMLDocument(filled) {
		html = fill.TextToHTML(filled)
	}

	resp := map[string]any{
		"text": filled,
		"html": html,
	}

	// Render a preview PDF when a browser is available.
	if s.renderer != nil {
		outDir, err := s.projects.OutputDir(user.ID, projectName)
		if err == nil {
			pdfPath := filepath.Join(outDir, fill.SafeFilename("preview - "+c.Param("type"))+".pdf")
			doc := filled
			if !fill.IsHTMLDocument(filled) {
				doc = fill.WrapInHTML(html, req.Target.Firm)
			}
			if err := s.renderer.RenderHTML(c.Request().Context(), doc, pdfPath); err != nil {
				log.Warn().Err(err).Msg("preview PDF render failed")
			} else {
				resp["pdf"] = pdfPath
			}
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// logUsage appends to the project usage log, logging rather than failing the
// request when the write does not land.
func logUsage(s *Server, userID, projectName, operation string, usage models.TokenUsage) {
	if usage.APICalls == 0 {
		return
	}
	err := s.projects.AppendUsage(userID, projectName, models.UsageRecord{Operation: operation, Usage: usage})
	if err != nil {
		log.Error().Err(err).Str("project", projectName).Msg("recording token usage")
	}
}
