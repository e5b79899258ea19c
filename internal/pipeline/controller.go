// Package pipeline orchestrates per-chapter jobs: it enforces at-most-one
// concurrent mutation per (book, chapter, language) target key and caches
// submissions by content fingerprint so an identical request observed twice
// is admitted once.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/readalong/readalong/internal/jobs"
)

// Submitter is the subset of jobs.Scheduler the Controller drives, kept
// narrow so tests can substitute a fake.
type Submitter interface {
	Submit(ctx context.Context, j jobs.Job) (string, error)
}

// Controller wraps a job Submitter with the keyed-exclusion and
// fingerprint-caching behavior the Pipeline Controller module requires.
// Retrying transient backend failures (TTS/LLM/ASR calls) is each Job's
// own concern, since those calls happen inside Job.Run, asynchronously
// after Submit has already returned — the Controller itself only ever
// persists a JobRecord and hands it to the Scheduler, a call that doesn't
// fail the way an external API call does.
type Controller struct {
	submitter Submitter
	keyMutex  *KeyMutex
	cache     *FingerprintCache
	logger    *slog.Logger
}

// ControllerConfig configures a new Controller.
type ControllerConfig struct {
	Submitter Submitter
	Logger    *slog.Logger
}

// NewController creates a Controller over submitter.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		submitter: cfg.Submitter,
		keyMutex:  NewKeyMutex(),
		cache:     NewFingerprintCache(),
		logger:    logger,
	}
}

// Submit runs j under exclusion for its target key. If a prior submission
// for the same (target key, fingerprint) pair is cached, its job id is
// returned without resubmitting.
func (c *Controller) Submit(ctx context.Context, j jobs.Job, fingerprint string) (jobID string, deduped bool, err error) {
	targetKey := j.TargetKey()

	if fingerprint != "" {
		if cachedID, ok := c.cache.Lookup(targetKey, fingerprint); ok {
			c.logger.Debug("pipeline: fingerprint cache hit", "target_key", targetKey, "job_id", cachedID)
			return cachedID, true, nil
		}
	}

	result, err, shared := c.keyMutex.Do(ctx, targetKey, func(ctx context.Context) (any, error) {
		id, submitErr := c.submitter.Submit(ctx, j)
		if submitErr != nil {
			return nil, fmt.Errorf("pipeline: submitting job for %s: %w", targetKey, submitErr)
		}
		if fingerprint != "" {
			c.cache.Store(targetKey, fingerprint, id)
		}
		return id, nil
	})
	if err != nil {
		return "", false, err
	}

	id, _ := result.(string)
	return id, shared, nil
}

// Invalidate drops any cached submissions for targetKey. Call after an
// Audio Editor mutation or restore, whose new canonical state isn't
// addressed by the fingerprint that produced the prior artifact.
func (c *Controller) Invalidate(targetKey string) {
	c.cache.Invalidate(targetKey)
}
