package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/waveroom/api/internal/model"
	"github.com/waveroom/api/internal/provider"
	"github.com/waveroom/api/internal/queue"
	"github.com/waveroom/api/internal/store"
)

// maxErrorCodeLen bounds provider-supplied error strings before they are
// written to the job record.
const maxErrorCodeLen = 100

// StatusBroadcaster pushes job-state transitions to live subscribers.
// Nil-safe wrapper noopBroadcaster is used when no hub is wired.
type StatusBroadcaster interface {
	BroadcastStatus(job *model.Job)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastStatus(*model.Job) {}

// ReconcileService drives the job state machine from normalized provider
// signals. Every transition is a conditional "still non-terminal" store
// update, so a late sweep and a late webhook cannot both win.
type ReconcileService struct {
	store        store.Store
	queue        queue.Queue
	materializer *Materializer
	hub          StatusBroadcaster
}

func NewReconcileService(st store.Store, q queue.Queue, m *Materializer, hub StatusBroadcaster) *ReconcileService {
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &ReconcileService{
		store:        st,
		queue:        q,
		materializer: m,
		hub:          hub,
	}
}

// Apply reconciles one inbound signal with the job it references.
// Returns the job as it stands after the signal has been applied. A signal
// for a job that already reached a terminal status is a no-op.
func (s *ReconcileService) Apply(ctx context.Context, providerName string, sig *provider.Signal) (*model.Job, error) {
	job, err := s.store.GetJobByExternalID(ctx, providerName, sig.ExternalJobID)
	if err == store.ErrNotFound {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up job: %w", err)
	}

	if job.Status.IsTerminal() {
		// stale or replayed delivery after a terminal transition
		log.Printf("[Reconcile] Job %s already %s, ignoring %s signal", job.ID, job.Status, sig.Kind)
		return job, nil
	}

	switch sig.Kind {
	case provider.SignalProgress:
		return s.applyProgress(ctx, job, sig)
	case provider.SignalFailure:
		return s.applyFailure(ctx, job, sig)
	case provider.SignalSuccess:
		return s.applySuccess(ctx, job, sig)
	default:
		return nil, fmt.Errorf("unknown signal kind %q", sig.Kind)
	}
}

func (s *ReconcileService) applyProgress(ctx context.Context, job *model.Job, sig *provider.Signal) (*model.Job, error) {
	updated, err := s.store.UpdateJobIfActive(ctx, job.ID, func(j *model.Job) error {
		j.Status = model.JobStatusRunning
		if sig.ProgressPct != nil {
			j.Progress = clamp(*sig.ProgressPct, 0, 100)
		} else {
			j.Progress = clamp(j.Progress, 5, 95)
		}
		if sig.EtaSec != nil {
			j.EtaSec = sig.EtaSec
		}
		if j.AttemptCount > 1 {
			j.RecoveryState = model.RecoveryRetrying
		} else {
			j.RecoveryState = model.RecoveryNone
		}
		return nil
	})
	if err == store.ErrJobTerminal {
		return job, nil
	}
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastStatus(updated)
	return updated, nil
}

func (s *ReconcileService) applyFailure(ctx context.Context, job *model.Job, sig *provider.Signal) (*model.Job, error) {
	updated, err := s.store.UpdateJobIfActive(ctx, job.ID, func(j *model.Job) error {
		j.Status = model.JobStatusFailed
		code := truncate(sig.ErrorCode, maxErrorCodeLen)
		if code == "" {
			code = model.ErrCodeProviderError
		}
		j.ErrorCode = &code
		j.AddQualityFlag(model.QualityFlagProviderFailure)
		if j.AttemptCount > 1 {
			j.RecoveryState = model.RecoveryFailedAfterRetry
		}
		now := time.Now()
		j.FinishedAt = &now
		return nil
	})
	if err == store.ErrJobTerminal {
		return job, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.queue.Dequeue(ctx, job.ID); err != nil {
		log.Printf("[Reconcile] Job %s: dequeue after failure: %v", job.ID, err)
	}
	s.hub.BroadcastStatus(updated)
	log.Printf("[Reconcile] Job %s failed (provider %s): %s", job.ID, job.Provider, *updated.ErrorCode)
	return updated, nil
}

func (s *ReconcileService) applySuccess(ctx context.Context, job *model.Job, sig *provider.Signal) (*model.Job, error) {
	// Materialize before the terminal write so a caller observing
	// "succeeded" can already see the artifacts. If a success webhook is
	// processed twice concurrently, both runs may materialize; the
	// conditional update below still lets only one mark the transition.
	artifacts := s.materializer.Materialize(ctx, job, sig.Outputs)
	degraded := sig.Degraded()

	updated, err := s.store.UpdateJobIfActive(ctx, job.ID, func(j *model.Job) error {
		j.Status = model.JobStatusSucceeded
		j.Progress = 100
		zero := 0
		j.EtaSec = &zero
		if degraded {
			j.RecoveryState = model.RecoveryDegradedFallback
			j.AddQualityFlag(model.QualityFlagFallbackPassthrough)
		} else {
			j.RecoveryState = model.RecoveryNone
		}
		if sig.Model != "" {
			j.Model = sig.Model
		}
		now := time.Now()
		j.FinishedAt = &now
		return nil
	})
	if err == store.ErrJobTerminal {
		return job, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.queue.Dequeue(ctx, job.ID); err != nil {
		log.Printf("[Reconcile] Job %s: dequeue after success: %v", job.ID, err)
	}
	s.hub.BroadcastStatus(updated)
	log.Printf("[Reconcile] Job %s succeeded with %d artifact(s)", job.ID, len(artifacts))
	return updated, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
