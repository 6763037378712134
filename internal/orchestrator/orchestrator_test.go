package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/internal/fill"
	"github.com/applydraft/internal/mail"
	"github.com/applydraft/internal/project"
	"github.com/applydraft/internal/template"
	"github.com/applydraft/pkg/models"
)

type fakeGenerator struct {
	response string
	usage    models.TokenUsage
	err      error
	calls    int
	onCall   func()
}

func (f *fakeGenerator) Generate(_ context.Context, _ ai.GenerateRequest) (*ai.GenerateResult, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ai.GenerateResult{Text: f.response, Usage: f.usage}, nil
}

type fakeRenderer struct {
	failFirms map[string]bool
	rendered  []string
}

func (f *fakeRenderer) RenderHTML(_ context.Context, html, outputPath string) error {
	f.rendered = append(f.rendered, html)
	for firm := range f.failFirms {
		if filepath.Base(filepath.Dir(outputPath)) == firm {
			return errors.New("render failed")
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte("%PDF fake"), 0o644)
}

type fakeProvider struct {
	drafts []mail.Draft
	err    error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateDraft(_ context.Context, tokens mail.OAuthTokens, draft mail.Draft) (mail.OAuthTokens, error) {
	if f.err != nil {
		return tokens, f.err
	}
	f.drafts = append(f.drafts, draft)
	return tokens, nil
}

type fakeCharger struct {
	charged float64
	desc    string
}

func (f *fakeCharger) Charge(_ context.Context, _ string, amount float64, description string) (float64, error) {
	f.charged += amount
	f.desc = description
	return 10 - amount, nil
}

func seedProject(t *testing.T) *project.Store {
	t.Helper()
	store := project.NewStore(t.TempDir())
	_, err := store.Create("u", models.ProjectConfig{ProjectName: "p", Name: "Ana Petrova", Phone: "+49 170"})
	require.NoError(t, err)

	require.NoError(t, store.SaveTemplate("u", "p", "cover_letter", &template.Template{
		Body: "Dear {{FIRM_NAME}},\n\n{{CUSTOM_MOTIVATION}}\n\n{{NAME}}",
		Definitions: []template.SlotDefinition{
			{Name: "CUSTOM_MOTIVATION", Description: "Why this firm", Prompt: "One paragraph."},
		},
	}))
	require.NoError(t, store.SaveTemplate("u", "p", models.EmailBodyTypeID, &template.Template{
		Body: "Dear {{FIRM_NAME}},\n\nPlease find my application attached.\n\n{{NAME}}",
	}))
	return store
}

func targets3() []models.Target {
	return []models.Target{
		{Firm: "Alpha", Email: "jobs@alpha.example", Position: "Violin", Source: "search"},
		{Firm: "Beta", Email: "jobs@beta.example", Position: "Violin", Source: "search"},
		{Firm: "Gamma", Email: "jobs@gamma.example", Position: "Violin", Source: "manual"},
	}
}

func TestRunFullBatch(t *testing.T) {
	chdirTemp(t)
	store := seedProject(t)
	gen := &fakeGenerator{
		response: `{"CUSTOM_MOTIVATION": "I admire your ensemble."}`,
		usage:    models.TokenUsage{InputTokens: 2000, OutputTokens: 400, APICalls: 1},
	}
	provider := &fakeProvider{}
	charger := &fakeCharger{}
	o := &Orchestrator{Gen: gen, Store: store, Renderer: &fakeRenderer{}, Provider: provider, Charger: charger}

	events := make(chan Event, 32)
	result, _, err := o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3(),
	}, events)
	require.NoError(t, err)

	require.Len(t, result.Generated, 3)
	for _, tr := range result.Generated {
		assert.Empty(t, tr.Error)
		assert.True(t, tr.PDF, tr.Firm)
		assert.True(t, tr.Draft, tr.Firm)
	}
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, 3*2000, result.TokenUsage.InputTokens)

	require.Len(t, provider.drafts, 3)
	assert.Equal(t, "jobs@alpha.example", provider.drafts[0].To)
	assert.Equal(t, "Application for Violin - Ana Petrova", provider.drafts[0].Subject)
	assert.Contains(t, provider.drafts[0].BodyText, "Please find my application attached.")
	require.Len(t, provider.drafts[0].Attachments, 1)

	// 3 created drafts at delivery rate, 1 manual at search rate
	assert.InDelta(t, 3*0.8+1*0.2, result.CreditUsage.Base, 1e-9)
	assert.InDelta(t, result.CreditUsage.Total, charger.charged, 1e-9)
	assert.Equal(t, 10-charger.charged, result.CreditUsage.Balance)
	assert.Contains(t, charger.desc, "3 delivered")
	assert.Contains(t, charger.desc, "base=2.600")

	rows, err := store.TrackerRows("u", "p")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.TrackerStatusGenerated, rows[0].Status)
	assert.Equal(t, "manual", rows[2].Source)

	saved, err := store.Targets("u", "p")
	require.NoError(t, err)
	assert.Len(t, saved, 3)

	close(events)
	var types []string
	for e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		EventProgress, EventTargetDone,
		EventProgress, EventTargetDone,
		EventProgress, EventTargetDone,
		EventComplete,
	}, types)
}

func TestRunIsolatesRenderFailure(t *testing.T) {
	chdirTemp(t)
	store := seedProject(t)
	gen := &fakeGenerator{response: `{"CUSTOM_MOTIVATION": "text"}`, usage: models.TokenUsage{APICalls: 1}}
	provider := &fakeProvider{}
	o := &Orchestrator{
		Gen:      gen,
		Store:    store,
		Renderer: &fakeRenderer{failFirms: map[string]bool{"Beta": true}},
		Provider: provider,
	}

	result, _, err := o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3(),
	}, nil)
	require.NoError(t, err)

	require.Len(t, result.Generated, 3)
	assert.True(t, result.Generated[0].PDF)
	assert.False(t, result.Generated[1].PDF)
	assert.True(t, result.Generated[2].PDF)
	// drafts are still staged, just without the failed attachment
	assert.True(t, result.Generated[1].Draft)

	rows, err := store.TrackerRows("u", "p")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRunDraftFailureRecorded(t *testing.T) {
	chdirTemp(t)
	store := seedProject(t)
	gen := &fakeGenerator{response: `{"CUSTOM_MOTIVATION": "text"}`}
	o := &Orchestrator{
		Gen:      gen,
		Store:    store,
		Renderer: &fakeRenderer{},
		Provider: &fakeProvider{err: errors.New("mailbox unavailable")},
	}

	result, _, err := o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3()[:1],
	}, nil)
	require.NoError(t, err)

	tr := result.Generated[0]
	assert.False(t, tr.Draft)
	assert.Contains(t, tr.DraftError, "mailbox unavailable")
	assert.Empty(t, tr.Error)
	assert.True(t, tr.PDF)
}

// A target whose draft was never created must not pay the delivery rate.
func TestRunDraftFailureNotBilled(t *testing.T) {
	chdirTemp(t)
	store := seedProject(t)
	charger := &fakeCharger{}
	o := &Orchestrator{
		Gen:      &fakeGenerator{response: `{"CUSTOM_MOTIVATION": "text"}`},
		Store:    store,
		Renderer: &fakeRenderer{},
		Provider: &fakeProvider{err: errors.New("mailbox unavailable")},
		Charger:  charger,
	}

	result, _, err := o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3()[:1],
	}, nil)
	require.NoError(t, err)

	assert.False(t, result.Generated[0].Draft)
	assert.Equal(t, 0.0, result.CreditUsage.Base)
	assert.Equal(t, 0.0, charger.charged)
}

// Synthesized templates arrive as complete HTML documents. They must reach
// the renderer and the mail body verbatim, never re-escaped as plain text.
func TestRunHTMLTemplatePassthrough(t *testing.T) {
	chdirTemp(t)
	store := project.NewStore(t.TempDir())
	_, err := store.Create("u", models.ProjectConfig{ProjectName: "p", Name: "Ana Petrova"})
	require.NoError(t, err)
	require.NoError(t, store.SaveTemplate("u", "p", "cover_letter", &template.Template{
		Body: "<html><body><p>Dear {{FIRM_NAME}},</p><p>Sincerely, {{NAME}}</p></body></html>",
	}))
	require.NoError(t, store.SaveTemplate("u", "p", models.EmailBodyTypeID, &template.Template{
		Body: "<html><body><p>Application attached, {{FIRM_NAME}}.</p></body></html>",
	}))

	renderer := &fakeRenderer{}
	provider := &fakeProvider{}
	o := &Orchestrator{Gen: &fakeGenerator{response: "{}"}, Store: store, Renderer: renderer, Provider: provider}

	result, _, err := o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3()[:1],
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Generated[0].Error)

	require.Len(t, renderer.rendered, 1)
	assert.Contains(t, renderer.rendered[0], "<p>Dear Alpha,</p>")
	assert.NotContains(t, renderer.rendered[0], "&lt;html")
	assert.NotContains(t, renderer.rendered[0], "<!DOCTYPE html>\n<html>\n<head>")

	require.Len(t, provider.drafts, 1)
	assert.Contains(t, provider.drafts[0].BodyHTML, "<p>Application attached, Alpha.</p>")
	assert.NotContains(t, provider.drafts[0].BodyHTML, "&lt;")
}

func TestRunDocumentAtSizeCap(t *testing.T) {
	chdirTemp(t)
	store := project.NewStore(t.TempDir())
	_, err := store.Create("u", models.ProjectConfig{ProjectName: "p", Name: "Ana"})
	require.NoError(t, err)
	require.NoError(t, store.SaveTemplate("u", "p", "cover_letter", &template.Template{
		Body: strings.TrimSpace(strings.Repeat("word ", fill.MaxTextUnits)),
	}))

	provider := &fakeProvider{}
	o := &Orchestrator{Gen: &fakeGenerator{response: "{}"}, Store: store, Renderer: &fakeRenderer{}, Provider: provider}

	result, _, err := o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3()[:1],
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Generated[0].Error)
	assert.True(t, result.Generated[0].Draft)
}

func TestRunOversizedDocumentRejected(t *testing.T) {
	chdirTemp(t)
	store := project.NewStore(t.TempDir())
	_, err := store.Create("u", models.ProjectConfig{ProjectName: "p", Name: "Ana"})
	require.NoError(t, err)
	require.NoError(t, store.SaveTemplate("u", "p", "cover_letter", &template.Template{
		Body: strings.TrimSpace(strings.Repeat("word ", fill.MaxTextUnits+1)),
	}))

	provider := &fakeProvider{}
	o := &Orchestrator{Gen: &fakeGenerator{response: "{}"}, Store: store, Renderer: &fakeRenderer{}, Provider: provider}

	result, _, err := o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3()[:1],
	}, nil)
	require.NoError(t, err)

	tr := result.Generated[0]
	assert.Contains(t, tr.Error, "text units")
	assert.False(t, tr.Draft)
	assert.Empty(t, provider.drafts)

	// the attempt is still tracked
	rows, err := store.TrackerRows("u", "p")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// After cancellation only the targets that actually ran become history;
// unprocessed targets stay available for a later batch.
func TestRunCancelPersistsOnlyProcessed(t *testing.T) {
	chdirTemp(t)
	store := seedProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &fakeGenerator{response: `{"CUSTOM_MOTIVATION": "text"}`, onCall: cancel}
	o := &Orchestrator{Gen: gen, Store: store, Renderer: &fakeRenderer{}, Provider: &fakeProvider{}}

	result, _, err := o.Run(ctx, BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3(),
	}, nil)
	require.NoError(t, err)

	assert.Len(t, result.Generated, 1)
	assert.Equal(t, 1, gen.calls)

	saved, err := store.Targets("u", "p")
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	rows, err := store.TrackerRows("u", "p")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRunAttachesMaterials(t *testing.T) {
	chdirTemp(t)
	store := seedProject(t)
	require.NoError(t, store.AddMaterial("u", "p", "resume.pdf", []byte("%PDF fake")))
	require.NoError(t, store.AddMaterial("u", "p", "certificate.pdf", []byte("%PDF fake")))

	provider := &fakeProvider{}
	o := &Orchestrator{
		Gen:      &fakeGenerator{response: `{"CUSTOM_MOTIVATION": "text"}`},
		Store:    store,
		Renderer: &fakeRenderer{},
		Provider: provider,
	}

	_, _, err := o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3()[:2],
	}, nil)
	require.NoError(t, err)

	require.Len(t, provider.drafts, 2)
	for _, draft := range provider.drafts {
		var names []string
		for _, a := range draft.Attachments {
			names = append(names, a.Filename)
		}
		assert.Contains(t, names, "resume.pdf")
		assert.Contains(t, names, "certificate.pdf")
	}
}

func TestRunGenerationFailureSkipsBilling(t *testing.T) {
	chdirTemp(t)
	store := seedProject(t)
	charger := &fakeCharger{}
	o := &Orchestrator{
		Gen:     &fakeGenerator{err: errors.New("model unavailable")},
		Store:   store,
		Charger: charger,
	}

	result, _, err := o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets3()[:1],
	}, nil)
	require.NoError(t, err)

	tr := result.Generated[0]
	assert.Contains(t, tr.Error, "model unavailable")
	assert.Equal(t, 0.0, result.CreditUsage.Base)
	assert.Equal(t, 0.0, charger.charged)

	// the attempt is still tracked
	rows, err := store.TrackerRows("u", "p")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRunSubjectPrecedence(t *testing.T) {
	chdirTemp(t)
	store := seedProject(t)
	cfg, err := store.Config("u", "p")
	require.NoError(t, err)
	cfg.SubjectTemplate = "Bewerbung {{POSITION}} - {{NAME}}"
	require.NoError(t, store.SaveConfig("u", "p", cfg))

	gen := &fakeGenerator{response: `{"CUSTOM_MOTIVATION": "text"}`}
	provider := &fakeProvider{}
	o := &Orchestrator{Gen: gen, Store: store, Renderer: &fakeRenderer{}, Provider: provider}

	targets := []models.Target{
		{Firm: "Alpha", Email: "a@x", Position: "Violin", Subject: "Ref 42: Violin application"},
		{Firm: "Beta", Email: "b@x", Position: "Violin"},
	}
	_, _, err = o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "ana@example.org", Project: "p", Targets: targets,
	}, nil)
	require.NoError(t, err)

	require.Len(t, provider.drafts, 2)
	assert.Equal(t, "Ref 42: Violin application", provider.drafts[0].Subject)
	assert.Equal(t, "Bewerbung Violin - Ana Petrova", provider.drafts[1].Subject)
}

func TestRunNoTargets(t *testing.T) {
	o := &Orchestrator{Store: project.NewStore(t.TempDir())}
	_, _, err := o.Run(context.Background(), BatchRequest{UserID: "u", Project: "p"}, nil)
	assert.Error(t, err)
}

func TestRunNoTemplates(t *testing.T) {
	chdirTemp(t)
	store := project.NewStore(t.TempDir())
	_, err := store.Create("u", models.ProjectConfig{ProjectName: "p"})
	require.NoError(t, err)

	o := &Orchestrator{Gen: &fakeGenerator{}, Store: store}
	_, _, err = o.Run(context.Background(), BatchRequest{
		UserID: "u", UserEmail: "a@x", Project: "p", Targets: targets3()[:1],
	}, nil)
	assert.Error(t, err)
}

// chdirTemp isolates the batch_logs directory each batch creates.
func chdirTemp(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestSourceOf(t *testing.T) {
	assert.Equal(t, "manual", sourceOf(models.Target{Manual: true}))
	assert.Equal(t, "manual", sourceOf(models.Target{Source: "manual"}))
	assert.Equal(t, "search", sourceOf(models.Target{Source: "search"}))
	assert.Equal(t, "search", sourceOf(models.Target{}))
}

func ExampleEvent() {
	fmt.Println(EventProgress, EventTargetDone, EventComplete)
	// Output: progress target_done complete
}
