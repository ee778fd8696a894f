package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/waveroom/api/internal/config"
	"github.com/waveroom/api/internal/model"
	"github.com/waveroom/api/internal/provider"
	"github.com/waveroom/api/internal/queue"
	"github.com/waveroom/api/internal/store"
)

// RecoveryService finds jobs that stopped receiving provider callbacks and
// resolves them without external input: another provider attempt while the
// retry ceiling allows, a passthrough-fallback completion for stem jobs on
// the custom provider, or a timed-out failure.
type RecoveryService struct {
	store        store.Store
	queue        queue.Queue
	materializer *Materializer
	hub          StatusBroadcaster
	cfg          config.RecoveryConfig
}

func NewRecoveryService(st store.Store, q queue.Queue, m *Materializer, hub StatusBroadcaster, cfg config.RecoveryConfig) *RecoveryService {
	if hub == nil {
		hub = noopBroadcaster{}
	}
	if cfg.QueuedStaleMin <= 0 {
		cfg.QueuedStaleMin = 15
	}
	if cfg.RunningStaleMin <= 0 {
		cfg.RunningStaleMin = 30
	}
	if cfg.StemTimeoutSec <= 0 {
		cfg.StemTimeoutSec = 210
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &RecoveryService{
		store:        st,
		queue:        q,
		materializer: m,
		hub:          hub,
		cfg:          cfg,
	}
}

// Sweep scans all queued and running jobs and resolves the stale ones.
func (s *RecoveryService) Sweep(ctx context.Context) (*model.SweepSummary, error) {
	summary := &model.SweepSummary{}
	now := time.Now()

	batches := []struct {
		status    model.JobStatus
		threshold time.Duration
	}{
		{model.JobStatusQueued, time.Duration(s.cfg.QueuedStaleMin) * time.Minute},
		{model.JobStatusRunning, time.Duration(s.cfg.RunningStaleMin) * time.Minute},
	}

	for _, b := range batches {
		jobs, err := s.store.ListJobsByStatus(ctx, b.status)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s jobs: %w", b.status, err)
		}
		summary.Scanned += len(jobs)

		for _, job := range jobs {
			if now.Sub(job.CreatedAt) < b.threshold {
				continue
			}
			summary.Stale++
			s.resolveStale(ctx, job, summary)
		}
	}

	log.Printf("[Recovery] Sweep: scanned=%d stale=%d retried=%d fallback=%d failed=%d",
		summary.Scanned, summary.Stale, summary.Retried, summary.Fallback, summary.Failed)
	return summary, nil
}

// resolveStale applies the recovery policy to one stale job. Every store
// write is conditional on the job still being non-terminal, so a webhook
// landing mid-sweep simply wins.
func (s *RecoveryService) resolveStale(ctx context.Context, job *model.Job, summary *model.SweepSummary) {
	if job.AttemptCount < s.cfg.MaxAttempts {
		if s.retry(ctx, job) {
			summary.Retried++
		}
		return
	}

	// retry ceiling exhausted
	if s.eligibleForPassthrough(ctx, job) {
		healed, err := s.HealPassthroughStem(ctx, job)
		if err != nil {
			log.Printf("[Recovery] Job %s: passthrough heal: %v", job.ID, err)
		}
		if healed {
			summary.Fallback++
		} else {
			summary.Failed++
		}
		return
	}

	if s.failTimedOut(ctx, job) {
		summary.Failed++
	}
}

// retry gives the provider another chance: bump the attempt count and put
// the job back on the queue without touching its status.
func (s *RecoveryService) retry(ctx context.Context, job *model.Job) bool {
	updated, err := s.store.UpdateJobIfActive(ctx, job.ID, func(j *model.Job) error {
		j.AttemptCount++
		j.RecoveryState = model.RecoveryRetrying
		now := time.Now()
		j.LastRecoveryAt = &now
		return nil
	})
	if err == store.ErrJobTerminal {
		return false
	}
	if err != nil {
		log.Printf("[Recovery] Job %s: retry update: %v", job.ID, err)
		return false
	}

	if err := s.queue.Enqueue(ctx, updated); err != nil {
		log.Printf("[Recovery] Job %s: re-enqueue: %v", job.ID, err)
		return false
	}
	log.Printf("[Recovery] Job %s re-enqueued (attempt %d)", job.ID, updated.AttemptCount)
	return true
}

// failTimedOut closes out a job that exhausted its retries.
func (s *RecoveryService) failTimedOut(ctx context.Context, job *model.Job) bool {
	updated, err := s.store.UpdateJobIfActive(ctx, job.ID, func(j *model.Job) error {
		j.Status = model.JobStatusFailed
		j.RecoveryState = model.RecoveryFailedAfterRetry
		if j.ErrorCode == nil || *j.ErrorCode == "" {
			code := model.ErrCodeJobTimedOut
			j.ErrorCode = &code
		}
		now := time.Now()
		j.FinishedAt = &now
		j.LastRecoveryAt = &now
		return nil
	})
	if err == store.ErrJobTerminal {
		return false
	}
	if err != nil {
		log.Printf("[Recovery] Job %s: timeout update: %v", job.ID, err)
		return false
	}

	if err := s.queue.Dequeue(ctx, job.ID); err != nil {
		log.Printf("[Recovery] Job %s: dequeue after timeout: %v", job.ID, err)
	}
	s.hub.BroadcastStatus(updated)
	log.Printf("[Recovery] Job %s failed after %d attempt(s)", job.ID, updated.AttemptCount)
	return true
}

// eligibleForPassthrough reports whether a stale job qualifies for the
// passthrough-fallback completion: a stem isolation job on the custom
// provider with nothing materialized yet.
func (s *RecoveryService) eligibleForPassthrough(ctx context.Context, job *model.Job) bool {
	if job.Provider != model.ProviderCustom || job.Tool != model.ToolStemIsolation {
		return false
	}
	artifacts, err := s.store.ListArtifactsByJob(ctx, job.ID)
	if err != nil {
		return false
	}
	return len(artifacts) == 0
}

// StaleForInlineHeal reports whether a job being polled qualifies for the
// opportunistic inline heal: same class as eligibleForPassthrough, past the
// stem timeout.
func (s *RecoveryService) StaleForInlineHeal(ctx context.Context, job *model.Job) bool {
	if job.Status.IsTerminal() {
		return false
	}
	if time.Since(job.CreatedAt) < time.Duration(s.cfg.StemTimeoutSec)*time.Second {
		return false
	}
	return s.eligibleForPassthrough(ctx, job)
}

// HealPassthroughStem synthesizes fallback artifacts from the original
// asset and completes the job as a degraded success. If even the source
// asset is gone, the job fails with stale_job_missing_asset. Returns true
// when the job was healed to succeeded.
func (s *RecoveryService) HealPassthroughStem(ctx context.Context, job *model.Job) (bool, error) {
	asset, err := s.store.GetAsset(ctx, job.AssetID)
	if err != nil || !asset.Ready(time.Now()) {
		s.failMissingAsset(ctx, job)
		return false, nil
	}

	outputs := []provider.Output{{
		Name:   "passthrough",
		URL:    asset.StorageURL,
		Format: extOf(asset.StorageKey),
	}}
	artifacts := s.materializer.Materialize(ctx, job, outputs)
	if len(artifacts) == 0 {
		s.failMissingAsset(ctx, job)
		return false, nil
	}

	updated, err := s.store.UpdateJobIfActive(ctx, job.ID, func(j *model.Job) error {
		j.Status = model.JobStatusSucceeded
		j.Progress = 100
		zero := 0
		j.EtaSec = &zero
		j.RecoveryState = model.RecoveryDegradedFallback
		j.AddQualityFlag(model.QualityFlagFallbackPassthrough)
		now := time.Now()
		j.FinishedAt = &now
		j.LastRecoveryAt = &now
		return nil
	})
	if err == store.ErrJobTerminal {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.queue.Dequeue(ctx, job.ID); err != nil {
		log.Printf("[Recovery] Job %s: dequeue after heal: %v", job.ID, err)
	}
	s.hub.BroadcastStatus(updated)
	log.Printf("[Recovery] Job %s healed with passthrough output", job.ID)
	return true, nil
}

func (s *RecoveryService) failMissingAsset(ctx context.Context, job *model.Job) {
	updated, err := s.store.UpdateJobIfActive(ctx, job.ID, func(j *model.Job) error {
		j.Status = model.JobStatusFailed
		j.RecoveryState = model.RecoveryFailedAfterRetry
		code := model.ErrCodeStaleJobMissingAsset
		j.ErrorCode = &code
		now := time.Now()
		j.FinishedAt = &now
		j.LastRecoveryAt = &now
		return nil
	})
	if err != nil {
		if err != store.ErrJobTerminal {
			log.Printf("[Recovery] Job %s: missing-asset update: %v", job.ID, err)
		}
		return
	}

	if err := s.queue.Dequeue(ctx, job.ID); err != nil {
		log.Printf("[Recovery] Job %s: dequeue after missing asset: %v", job.ID, err)
	}
	s.hub.BroadcastStatus(updated)
}
