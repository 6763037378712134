// Package orchestrator runs generation batches: for each target it fills the
// project's templates, renders attachments, stages a mail draft, and records
// the outcome. Failures are isolated per target so one bad firm never sinks
// a batch.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/internal/billing"
	"github.com/applydraft/internal/fill"
	"github.com/applydraft/internal/logging"
	"github.com/applydraft/internal/mail"
	"github.com/applydraft/internal/project"
	"github.com/applydraft/internal/template"
	"github.com/applydraft/pkg/models"
)

// Event types emitted while a batch runs.
const (
	EventProgress   = "progress"
	EventTargetDone = "target_done"
	EventComplete   = "complete"
)

// Event is one streamed batch update.
type Event struct {
	Type    string               `json:"type"`
	Index   int                  `json:"index,omitempty"`
	Total   int                  `json:"total,omitempty"`
	Firm    string               `json:"firm,omitempty"`
	Stage   string               `json:"stage,omitempty"`
	Result  *models.TargetResult `json:"result,omitempty"`
	Summary *models.BatchResult  `json:"summary,omitempty"`
}

// PDFRenderer renders an HTML document to a PDF file.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html, outputPath string) error
}

// SubjectResolver looks up posting-specific subject lines.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, target models.Target, position string) (string, models.TokenUsage, error)
}

// Charger deducts credits after a batch completes.
type Charger interface {
	Charge(ctx context.Context, userID string, amount float64, description string) (float64, error)
}

// Orchestrator wires the batch pipeline together. Renderer, provider,
// subjects, and charger are all optional; missing pieces degrade the
// corresponding stage instead of failing the batch.
type Orchestrator struct {
	Gen      ai.Generator
	Store    *project.Store
	Renderer PDFRenderer
	Provider mail.Provider
	Subjects SubjectResolver
	Charger  Charger
}

// BatchRequest describes one generation batch.
type BatchRequest struct {
	UserID       string
	UserEmail    string
	Project      string
	Targets      []models.Target
	SmartSubject bool
	Tokens       mail.OAuthTokens
}

// Run executes the batch. Events are emitted to events when non-nil; the
// channel is not closed by Run. The returned result always has one entry
// per requested target, in order.
func (o *Orchestrator) Run(ctx context.Context, req BatchRequest, events chan<- Event) (*models.BatchResult, mail.OAuthTokens, error) {
	if len(req.Targets) == 0 {
		return nil, req.Tokens, fmt.Errorf("no targets to generate")
	}

	cfg, err := o.Store.Config(req.UserID, req.Project)
	if err != nil {
		return nil, req.Tokens, err
	}

	batchID := uuid.NewString()
	blog, _ := logging.StartBatchLogging(batchID)
	defer blog.Close()
	blog.LogSection("batch start")
	blog.Log("project=%s targets=%d", req.Project, len(req.Targets))

	identity := models.Identity{Name: cfg.Name, Phone: cfg.Phone, Email: req.UserEmail}

	docs, err := o.loadDocuments(req.UserID, req.Project, cfg)
	if err != nil {
		return nil, req.Tokens, err
	}

	outDir, err := o.Store.OutputDir(req.UserID, req.Project)
	if err != nil {
		return nil, req.Tokens, err
	}

	materials, err := o.Store.MaterialPaths(req.UserID, req.Project)
	if err != nil {
		blog.LogError("listing materials", err)
	}

	result := &models.BatchResult{}
	tokens := req.Tokens
	var trackerRows []models.TrackerRow
	var processed []models.Target
	manual, delivered := 0, 0

	for i, target := range req.Targets {
		if err := ctx.Err(); err != nil {
			blog.LogError("batch cancelled", err)
			break
		}
		emit(events, Event{Type: EventProgress, Index: i + 1, Total: len(req.Targets), Firm: target.Firm, Stage: "generating"})

		tr, usage, newTokens := o.processTarget(ctx, targetContext{
			config:    cfg,
			identity:  identity,
			docs:      docs,
			outDir:    outDir,
			materials: materials,
			target:    target,
			smart:     req.SmartSubject,
			tokens:    tokens,
			blog:      blog,
		})
		tokens = newTokens
		result.TokenUsage.Add(usage)
		result.Generated = append(result.Generated, tr)
		processed = append(processed, target)

		if tr.Error == "" && target.IsManual() {
			manual++
		}
		if tr.Draft {
			delivered++
		}

		trackerRows = append(trackerRows, models.TrackerRow{
			Firm:        target.Firm,
			Location:    target.Location,
			Position:    target.Position,
			OpenDate:    target.OpenDate,
			AppliedDate: time.Now().Format("2006-01-02"),
			Email:       target.Email,
			Source:      sourceOf(target),
			Status:      models.TrackerStatusGenerated,
		})

		emit(events, Event{Type: EventTargetDone, Index: i + 1, Total: len(req.Targets), Firm: target.Firm, Result: &result.Generated[i]})
	}

	// Persist history before billing so a charge failure never loses work.
	if err := o.Store.AppendTrackerRows(req.UserID, req.Project, trackerRows); err != nil {
		result.SaveError = err.Error()
		blog.LogError("saving tracker", err)
	}
	if err := o.Store.AppendTargets(req.UserID, req.Project, processed); err != nil && result.SaveError == "" {
		result.SaveError = err.Error()
		blog.LogError("saving targets", err)
	}
	if err := o.Store.AppendUsage(req.UserID, req.Project, models.UsageRecord{
		Operation: "generate",
		Usage:     result.TokenUsage,
	}); err != nil && result.SaveError == "" {
		result.SaveError = err.Error()
	}

	charge := billing.GenerateCharge(manual, delivered, len(processed), result.TokenUsage)
	result.CreditUsage = models.CreditUsage{
		Base:        charge.Base,
		Overage:     charge.Overage,
		Total:       charge.Total,
		LimitTokens: charge.LimitTokens,
	}
	if o.Charger != nil && charge.Total > 0 {
		desc := fmt.Sprintf("generate: %d delivered, %d manual (base=%.3f, overage=%.3f)",
			delivered, manual, charge.Base, charge.Overage)
		balance, err := o.Charger.Charge(ctx, req.UserID, charge.Total, desc)
		if err != nil {
			result.CreditUsage.Error = err.Error()
			blog.LogError("charging credits", err)
		} else {
			result.CreditUsage.Balance = balance
		}
	}

	blog.LogSection("batch done")
	blog.Log("delivered=%d manual=%d tokens=%d credits=%.3f", delivered, manual, result.TokenUsage.Total(), charge.Total)
	log.Info().
		Str("batch_id", batchID).
		Str("project", req.Project).
		Int("delivered", delivered).
		Int("manual", manual).
		Float64("credits", charge.Total).
		Msg("generation batch completed")

	emit(events, Event{Type: EventComplete, Summary: result})
	return result, tokens, nil
}

// document pairs a document type with its loaded template.
type document struct {
	docType models.DocumentType
	tmpl    *template.Template
}

// loadDocuments loads every document type's template. Attachment types
// without a stored template are skipped; a missing email body template means
// the first attachment's filled text doubles as the body.
func (o *Orchestrator) loadDocuments(userID, projectName string, cfg models.ProjectConfig) ([]document, error) {
	var docs []document
	for _, dt := range cfg.DocumentTypes {
		if !o.Store.HasTemplate(userID, projectName, dt.ID) {
			continue
		}
		tmpl, err := o.Store.Template(userID, projectName, dt.ID)
		if err != nil {
			return nil, err
		}
		docs = append(docs, document{docType: dt, tmpl: tmpl})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no templates stored; synthesize or save a template first")
	}
	return docs, nil
}

type targetContext struct {
	config    models.ProjectConfig
	identity  models.Identity
	docs      []document
	outDir    string
	materials []string
	target    models.Target
	smart     bool
	tokens    mail.OAuthTokens
	blog      *logging.BatchLogger
}

// processTarget runs the full pipeline for one target. It never returns an
// error; failures land in the TargetResult so the batch continues.
func (o *Orchestrator) processTarget(ctx context.Context, tc targetContext) (models.TargetResult, models.TokenUsage, mail.OAuthTokens) {
	tr := models.TargetResult{Firm: tc.target.Firm}
	var usage models.TokenUsage

	custom, genUsage, err := o.generateContent(ctx, tc)
	usage.Add(genUsage)
	if err != nil {
		tr.Error = err.Error()
		tc.blog.LogError(fmt.Sprintf("content generation for %s", tc.target.Firm), err)
		return tr, usage, tc.tokens
	}

	in := fill.Inputs{Identity: tc.identity, Target: tc.target, Custom: custom}

	var attachments []mail.Attachment
	var bodyText, bodyHTML string
	pdfOK := true

	for _, doc := range tc.docs {
		filled := fill.Fill(doc.tmpl.Body, in)
		if n := fill.CountTextUnits(filled); n > fill.MaxTextUnits {
			tr.Error = fmt.Sprintf("%s for %s is %d text units, over the %d limit", doc.docType.ID, tc.target.Firm, n, fill.MaxTextUnits)
			tc.blog.Log("validation failed: %s", tr.Error)
			return tr, usage, tc.tokens
		}
		if doc.docType.ID == models.EmailBodyTypeID {
			bodyText = filled
			if fill.IsHTMLDocument(filled) {
				bodyHTML = filled
			} else {
				bodyHTML = fill.TextToHTML(filled)
			}
			continue
		}
		if bodyText == "" {
			bodyText = filled
		}

		format := doc.docType.FilenameFormat
		if format == "" {
			format = tc.config.FilenameFormat
		}
		name := fill.Filename(format, in, ".pdf")
		outPath := filepath.Join(tc.outDir, fill.SafeFilename(tc.target.Firm), name)

		if o.Renderer == nil {
			pdfOK = false
			continue
		}
		// Synthesized templates are already complete HTML documents; only
		// plain text is promoted and wrapped.
		html := filled
		if !fill.IsHTMLDocument(filled) {
			html = fill.WrapInHTML(fill.TextToHTML(filled), doc.docType.Label)
		}
		if err := o.Renderer.RenderHTML(ctx, html, outPath); err != nil {
			pdfOK = false
			tc.blog.LogError(fmt.Sprintf("rendering %s for %s", doc.docType.ID, tc.target.Firm), err)
			continue
		}
		tr.PDFs = append(tr.PDFs, doc.docType.Label)
		attachments = append(attachments, mail.Attachment{Filename: name, Path: outPath})
	}
	tr.PDF = pdfOK && len(attachments) > 0

	// Project materials (resume, certificates) ride along on every draft.
	for _, m := range tc.materials {
		attachments = append(attachments, mail.Attachment{Filename: filepath.Base(m), Path: m})
	}

	subject, subjUsage := o.resolveSubject(ctx, tc, in)
	usage.Add(subjUsage)

	tokens := tc.tokens
	if o.Provider != nil && tc.target.Email != "" {
		newTokens, err := o.Provider.CreateDraft(ctx, tokens, mail.Draft{
			To:          tc.target.Email,
			Subject:     subject,
			BodyText:    bodyText,
			BodyHTML:    bodyHTML,
			Attachments: attachments,
		})
		tokens = newTokens
		if err != nil {
			tr.DraftError = err.Error()
			tc.blog.LogError(fmt.Sprintf("draft for %s", tc.target.Firm), err)
		} else {
			tr.Draft = true
		}
	}

	return tr, usage, tokens
}

// resolveSubject picks the subject line: an explicit subject on the target
// wins, then a smart-subject lookup, then the project subject template, then
// the default.
func (o *Orchestrator) resolveSubject(ctx context.Context, tc targetContext, in fill.Inputs) (string, models.TokenUsage) {
	if s := strings.TrimSpace(tc.target.Subject); s != "" {
		return s, models.TokenUsage{}
	}
	if tc.smart && o.Subjects != nil {
		subject, usage, err := o.Subjects.ResolveSubject(ctx, tc.target, tc.target.Position)
		if err != nil {
			tc.blog.LogError(fmt.Sprintf("smart subject for %s", tc.target.Firm), err)
		} else if subject != "" {
			return subject, usage
		}
		if s := o.fallbackSubject(tc, in); s != "" {
			return s, usage
		}
		return fill.DefaultSubject(tc.identity, tc.target), usage
	}
	if s := o.fallbackSubject(tc, in); s != "" {
		return s, models.TokenUsage{}
	}
	return fill.DefaultSubject(tc.identity, tc.target), models.TokenUsage{}
}

func (o *Orchestrator) fallbackSubject(tc targetContext, in fill.Inputs) string {
	if strings.TrimSpace(tc.config.SubjectTemplate) == "" {
		return ""
	}
	return fill.Subject(tc.config.SubjectTemplate, in)
}

func sourceOf(t models.Target) string {
	if t.IsManual() {
		return "manual"
	}
	if t.Source != "" {
		return t.Source
	}
	return "search"
}

func emit(events chan<- Event, e Event) {
	if events == nil {
		return
	}
	events <- e
}
