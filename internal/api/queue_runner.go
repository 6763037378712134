package api

import (
	"context"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/internal/config"
	"github.com/applydraft/internal/credits"
	"github.com/applydraft/internal/discovery"
	"github.com/applydraft/internal/mail"
	"github.com/applydraft/internal/orchestrator"
	"github.com/applydraft/internal/project"
	"github.com/applydraft/pkg/models"
)

// QueueRunner executes queued generation batches. Unlike the interactive
// path, the user's mail provider is resolved from stored settings at work
// time, so a batch queued hours ago still drafts with current credentials.
type QueueRunner struct {
	Cfg      *config.Config
	Gen      ai.Generator
	Projects *project.Store
	Credits  *credits.Store
	Settings *SettingsStore
	Searcher *discovery.Searcher
	Renderer orchestrator.PDFRenderer
}

// Run builds the per-user pipeline and executes the batch.
func (r *QueueRunner) Run(ctx context.Context, req orchestrator.BatchRequest, events chan<- orchestrator.Event) (*models.BatchResult, mail.OAuthTokens, error) {
	provider, _, err := r.Settings.ProviderFor(ctx, req.UserID, r.Cfg)
	if err != nil {
		return nil, req.Tokens, err
	}

	o := &orchestrator.Orchestrator{
		Gen:      r.Gen,
		Store:    r.Projects,
		Renderer: r.Renderer,
		Provider: provider,
		Subjects: r.Searcher,
		Charger:  r.Credits,
	}
	return o.Run(ctx, req, events)
}
