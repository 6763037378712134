package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applydraft/internal/template"
	"github.com/applydraft/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestCreateSeedsProject(t *testing.T) {
	s := newTestStore(t)

	cfg, err := s.Create("user-1", models.ProjectConfig{ProjectName: "Orchestra 2026", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Orchestra 2026", cfg.ProjectName)
	require.Len(t, cfg.DocumentTypes, 2)
	assert.Equal(t, "cover_letter", cfg.DocumentTypes[0].ID)
	assert.Equal(t, models.EmailBodyTypeID, cfg.DocumentTypes[1].ID)

	dir := s.projectDir("user-1", "Orchestra 2026")
	for _, f := range []string{"config.json", "targets.json", "tracker.csv", "instructions.txt"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tracker.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Firm,Location,Position,OpenDate,AppliedDate,Email,Source,Status\n", string(data))
}

func TestCreateUniquifiesName(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("u", models.ProjectConfig{ProjectName: "demo"})
	require.NoError(t, err)
	cfg2, err := s.Create("u", models.ProjectConfig{ProjectName: "demo"})
	require.NoError(t, err)
	assert.Equal(t, "demo-2", cfg2.ProjectName)

	names, err := s.List("u")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo", "demo-2"}, names)
}

func TestCreateSanitizesName(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.Create("u", models.ProjectConfig{ProjectName: "a/b:c"})
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", cfg.ProjectName)
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.Create("u", models.ProjectConfig{
		ProjectName:     "p",
		JobRequirements: "violin positions in Europe",
		Name:            "Ana Petrova",
		Phone:           "+49 170 1234567",
	})
	require.NoError(t, err)

	loaded, err := s.Config("u", "p")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(cfg, loaded))
}

func TestDocumentTypeManagement(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)

	require.NoError(t, s.AddDocumentType("u", "p", models.DocumentType{ID: "cv", Label: "CV", IsAttachment: true}))
	assert.Error(t, s.AddDocumentType("u", "p", models.DocumentType{ID: "cv", Label: "dup"}))

	require.NoError(t, s.RemoveDocumentType("u", "p", "cv"))
	assert.Error(t, s.RemoveDocumentType("u", "p", "cv"))
	assert.Error(t, s.RemoveDocumentType("u", "p", models.EmailBodyTypeID))

	cfg, err := s.Config("u", "p")
	require.NoError(t, err)
	assert.Len(t, cfg.DocumentTypes, 2)
}

func TestTemplateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)

	tmpl := &template.Template{
		Body: "Dear {{FIRM_NAME}},\n\n{{CUSTOM_MOTIVATION}}\n\n{{NAME}}",
		Definitions: []template.SlotDefinition{
			{
				Name:        "CUSTOM_MOTIVATION",
				Description: "Why this firm",
				Prompt:      "Write one paragraph about the firm.",
				Example:     "I have admired your work.",
				Constraints: "Max 80 words.",
			},
		},
	}
	require.NoError(t, s.SaveTemplate("u", "p", "cover_letter", tmpl))
	assert.True(t, s.HasTemplate("u", "p", "cover_letter"))
	assert.False(t, s.HasTemplate("u", "p", models.EmailBodyTypeID))

	loaded, err := s.Template("u", "p", "cover_letter")
	require.NoError(t, err)
	assert.Equal(t, tmpl.Body, loaded.Body)
	assert.Empty(t, cmp.Diff(tmpl.Definitions, loaded.Definitions))
}

func TestExamples(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)

	require.NoError(t, s.AddExample("u", "p", "cover_letter", "b.txt", "second example"))
	require.NoError(t, s.AddExample("u", "p", "cover_letter", "a.txt", "first example"))

	examples, err := s.Examples("u", "p", "cover_letter")
	require.NoError(t, err)
	assert.Equal(t, []string{"first example", "second example"}, examples)

	none, err := s.Examples("u", "p", "email_body")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTrackerAppendAndRead(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)

	rows := []models.TrackerRow{
		{Firm: "Berlin Philharmonic", Location: "Berlin", Position: "Violin II", AppliedDate: "2026-08-31", Email: "jobs@example.org", Source: "search", Status: models.TrackerStatusGenerated},
		{Firm: "Oslo, Ensemble", Location: "Oslo", Position: "Viola", AppliedDate: "2026-08-31", Email: "apply@oslo.example", Source: "manual", Status: models.TrackerStatusGenerated},
	}
	require.NoError(t, s.AppendTrackerRows("u", "p", rows))
	require.NoError(t, s.AppendTrackerRows("u", "p", rows[:1]))

	got, err := s.TrackerRows("u", "p")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Oslo, Ensemble", got[1].Firm)

	firms, err := s.TrackedFirms("u", "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"Berlin Philharmonic", "Oslo, Ensemble"}, firms)
}

func TestTargetsAppend(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)

	require.NoError(t, s.AppendTargets("u", "p", []models.Target{{Firm: "A", Email: "a@x"}}))
	require.NoError(t, s.AppendTargets("u", "p", []models.Target{{Firm: "B", Email: "b@x"}}))

	targets, err := s.Targets("u", "p")
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "A", targets[0].Firm)
}

func TestUsageLog(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)

	require.NoError(t, s.AppendUsage("u", "p", models.UsageRecord{
		Operation: "search",
		Usage:     models.TokenUsage{InputTokens: 90000, OutputTokens: 1500, APICalls: 1},
	}))
	require.NoError(t, s.AppendUsage("u", "p", models.UsageRecord{
		Operation: "generate",
		Usage:     models.TokenUsage{InputTokens: 4000, OutputTokens: 2000, APICalls: 2},
	}))

	perOp, total, err := s.UsageTotals("u", "p")
	require.NoError(t, err)
	assert.Equal(t, 94000, total.InputTokens)
	assert.Equal(t, 3500, total.OutputTokens)
	assert.Equal(t, 3, total.APICalls)
	assert.Equal(t, 1, perOp["search"].APICalls)
}

func TestInstructions(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)

	text, err := s.Instructions("u", "p")
	require.NoError(t, err)
	assert.Empty(t, text)

	require.NoError(t, s.SaveInstructions("u", "p", "prefer chamber orchestras"))
	text, err = s.Instructions("u", "p")
	require.NoError(t, err)
	assert.Equal(t, "prefer chamber orchestras", text)
}

func TestMaterials(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)

	names, err := s.MaterialNames("u", "p")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.AddMaterial("u", "p", "resume.pdf", []byte("%PDF fake")))
	require.NoError(t, s.AddMaterial("u", "p", "certificate.pdf", []byte("%PDF fake")))

	names, err = s.MaterialNames("u", "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"certificate.pdf", "resume.pdf"}, names)

	paths, err := s.MaterialPaths("u", "p")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	require.NoError(t, s.RemoveMaterial("u", "p", "resume.pdf"))
	names, err = s.MaterialNames("u", "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"certificate.pdf"}, names)

	assert.Error(t, s.RemoveMaterial("u", "p", "resume.pdf"))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)
	assert.True(t, s.Exists("u", "p"))

	require.NoError(t, s.Delete("u", "p"))
	assert.False(t, s.Exists("u", "p"))
	assert.Error(t, s.Delete("u", "p"))
}
