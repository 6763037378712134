/*
Package jobqueue provides a River-based job queue for running generation
batches in the background. Interactive batches stream over SSE; queued
batches run here so large target lists survive client disconnects and
process restarts.

For configuration options, retry policies, and tuning parameters, see
queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/applydraft/internal/mail"
	"github.com/applydraft/internal/orchestrator"
	"github.com/applydraft/pkg/models"
)

// BatchGenerateJobArgs are the arguments for a queued generation batch.
// Mail tokens are loaded fresh at work time, never stored in the job row.
type BatchGenerateJobArgs struct {
	UserID       string          `json:"user_id"`
	UserEmail    string          `json:"user_email"`
	Project      string          `json:"project"`
	Targets      []models.Target `json:"targets"`
	SmartSubject bool            `json:"smart_subject"`
}

// Kind returns the job kind for River.
func (BatchGenerateJobArgs) Kind() string {
	return "batch_generate"
}

// BatchRunner executes one generation batch.
type BatchRunner interface {
	Run(ctx context.Context, req orchestrator.BatchRequest, events chan<- orchestrator.Event) (*models.BatchResult, mail.OAuthTokens, error)
}

// TokenSource loads the user's current mail tokens, and persists the
// refreshed pair after a batch.
type TokenSource interface {
	Tokens(ctx context.Context, userID string) (mail.OAuthTokens, error)
	SaveTokens(ctx context.Context, userID string, tokens mail.OAuthTokens) error
}

// BatchGenerateWorker runs queued generation batches.
type BatchGenerateWorker struct {
	river.WorkerDefaults[BatchGenerateJobArgs]
	runner BatchRunner
	tokens TokenSource
	config *QueueConfig
}

// Work runs one queued batch end to end. Target-level failures are recorded
// in the batch result and do not fail the job; only setup errors are
// returned to River for retry.
func (w *BatchGenerateWorker) Work(ctx context.Context, job *river.Job[BatchGenerateJobArgs]) error {
	args := job.Args

	log.Info().
		Str("user_id", args.UserID).
		Str("project", args.Project).
		Int("targets", len(args.Targets)).
		Int64("job_id", job.ID).
		Msg("queued batch starting")

	var tokens mail.OAuthTokens
	if w.tokens != nil {
		var err error
		tokens, err = w.tokens.Tokens(ctx, args.UserID)
		if err != nil {
			return fmt.Errorf("loading mail tokens for %s: %w", args.UserID, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	result, newTokens, err := w.runner.Run(ctx, orchestrator.BatchRequest{
		UserID:       args.UserID,
		UserEmail:    args.UserEmail,
		Project:      args.Project,
		Targets:      args.Targets,
		SmartSubject: args.SmartSubject,
		Tokens:       tokens,
	}, nil)
	if err != nil {
		return fmt.Errorf("running queued batch: %w", err)
	}

	if w.tokens != nil && newTokens != tokens {
		if err := w.tokens.SaveTokens(ctx, args.UserID, newTokens); err != nil {
			log.Error().Err(err).Str("user_id", args.UserID).Msg("persisting refreshed mail tokens")
		}
	}

	log.Info().
		Str("project", args.Project).
		Int("generated", len(result.Generated)).
		Float64("credits", result.CreditUsage.Total).
		Str("save_error", result.SaveError).
		Int64("job_id", job.ID).
		Msg("queued batch finished")
	return nil
}

// JobQueue manages the River job queue.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates the queue with its own connection pool.
func NewJobQueue(databaseURL string, runner BatchRunner, tokens TokenSource) (*JobQueue, error) {
	config := GetQueueConfig()

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &BatchGenerateWorker{runner: runner, tokens: tokens, config: config})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers, then closes the pool they were using.
func (jq *JobQueue) Stop(ctx context.Context) error {
	return stopThenClose(ctx, jq.client.Stop, jq.pool.Close)
}

// stopThenClose drains workers before their connections go away. Closing the
// pool first would yank connections from jobs still finishing.
func stopThenClose(ctx context.Context, stop func(context.Context) error, closePool func()) error {
	err := stop(ctx)
	closePool()
	return err
}

// QueueBatch enqueues a generation batch. Batches for the same project go on
// the same queue with one worker, so a project's tracker and target history
// never see concurrent appends.
func (jq *JobQueue) QueueBatch(ctx context.Context, args BatchGenerateJobArgs) (int64, error) {
	if len(args.Targets) == 0 {
		return 0, fmt.Errorf("no targets to queue")
	}
	row, err := jq.client.Insert(ctx, args, &river.InsertOpts{Queue: GenerateQueue})
	if err != nil {
		return 0, fmt.Errorf("failed to queue generation batch: %w", err)
	}
	return row.Job.ID, nil
}
