/*
Package jobqueue configuration - All tunable parameters for the River job
queue system.

# River Job Queue Configuration Guide

This file contains all configurable parameters for the background generation
queue. Modify these values to tune performance, reliability, and behavior
according to your needs.

## Quick Configuration Reference:

### Performance Tuning:
- GenerateQueue stays at 1 worker: batches within a project append to the
  same tracker and target history, and the model provider rate limit applies
  account-wide anyway
- Adjust MaxRetries for different reliability vs. speed tradeoffs

### Reliability Tuning:
- Increase MaxRetries for better reliability on unstable networks
- Configure JobTimeout based on batch size and model response times

## Monitoring and Debugging:
- Job status can be monitored via River's built-in job tracking
- Failed jobs retain error information in the River jobs table
- Per-batch detail lands in the batch_logs directory

## Database Requirements:
- PostgreSQL with River schema migrations applied
- Connection pool configured for concurrent workers
*/
package jobqueue

import (
	"os"
	"time"

	"github.com/riverqueue/river"
)

// GenerateQueue is the dedicated queue for generation batches.
const GenerateQueue = "generate"

// QueueConfig holds all configurable parameters for the job queue.
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Workers on the default queue

	// Retry Configuration
	MaxRetries   int           // Maximum retry attempts per job
	RetryPolicy  RetryPolicy   // Retry timing and backoff configuration
	JobTimeout   time.Duration // Maximum time a single batch can run
	QueueTimeout time.Duration // Maximum time jobs can stay in queue
}

// RetryPolicy defines how failed jobs are retried.
type RetryPolicy struct {
	// InitialInterval is the time to wait before the first retry
	InitialInterval time.Duration

	// MaxInterval is the maximum time to wait between retries
	MaxInterval time.Duration

	// Multiplier is the factor by which the interval increases after each retry
	Multiplier float64

	// MaxElapsedTime is the total time after which retries stop
	MaxElapsedTime time.Duration
}

// DefaultQueueConfig returns the default configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers: 4,

		// A failed batch retries a few times, then stays in the jobs table
		// for inspection. Generation is billed per success, so endless
		// retries would be billed endlessly too.
		MaxRetries: 3,
		RetryPolicy: RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaxInterval:     10 * time.Minute,
			Multiplier:      2.0,
			MaxElapsedTime:  2 * time.Hour,
		},

		// A ten-target batch with smart subjects makes up to twenty model
		// calls; give it room.
		JobTimeout:   30 * time.Minute,
		QueueTimeout: 24 * time.Hour,
	}
}

// ProductionQueueConfig returns a configuration optimized for production use.
func ProductionQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()

	config.JobTimeout = 60 * time.Minute
	config.RetryPolicy.MaxElapsedTime = 12 * time.Hour

	return config
}

// DevelopmentQueueConfig returns a configuration optimized for development.
func DevelopmentQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()

	config.MaxRetries = 1
	config.RetryPolicy.MaxElapsedTime = 10 * time.Minute
	config.JobTimeout = 5 * time.Minute

	return config
}

// GetQueueConfig returns the appropriate configuration based on environment.
func GetQueueConfig() *QueueConfig {
	switch os.Getenv("APPLYDRAFT_ENV") {
	case "production":
		return ProductionQueueConfig()
	case "development":
		return DevelopmentQueueConfig()
	}
	return DefaultQueueConfig()
}

// RiverQueueConfig converts our config to River's queue configuration
// format. The generate queue is deliberately single-worker; see the package
// comment.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
		GenerateQueue: {
			MaxWorkers: 1,
		},
	}
}
