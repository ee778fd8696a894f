package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/waveroom/api/internal/model"
	"github.com/waveroom/api/internal/queue"
	"github.com/waveroom/api/internal/store"
)

// toolRoute is the provider/model routing policy per tool type.
type toolRoute struct {
	Provider string
	Model    string
}

var toolRoutes = map[model.ToolType]toolRoute{
	model.ToolStemIsolation: {model.ProviderCustom, "htdemucs-ft"},
	model.ToolMastering:     {model.ProviderCustom, "matchering-v2"},
	model.ToolKeyBPM:        {model.ProviderReplicate, "key-bpm-detector"},
	model.ToolLoudness:      {model.ProviderCustom, "ebur128-scan"},
	model.ToolMIDIExtract:   {model.ProviderReplicate, "basic-pitch"},
}

// JobService is the synchronous-facing job surface: it is the only
// component that creates jobs, and the only one callers poll.
type JobService struct {
	store    store.Store
	queue    queue.Queue
	recovery *RecoveryService
}

func NewJobService(st store.Store, q queue.Queue, recovery *RecoveryService) *JobService {
	return &JobService{
		store:    st,
		queue:    q,
		recovery: recovery,
	}
}

// CreateJob validates the asset, routes the tool to a provider/model, and
// persists the job in queued state before putting it on the queue.
func (s *JobService) CreateJob(ctx context.Context, sessionID string, req *model.CreateJobRequest) (*model.Job, error) {
	route, ok := toolRoutes[req.Tool]
	if !ok {
		return nil, ErrInvalidTool
	}

	asset, err := s.store.GetAsset(ctx, req.AssetID)
	if err == store.ErrNotFound {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset: %w", err)
	}
	if asset.SessionID != sessionID {
		return nil, ErrAssetNotFound
	}
	if !asset.Ready(time.Now()) {
		return nil, ErrAssetNotReady
	}

	job := &model.Job{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		AssetID:       asset.ID,
		Tool:          req.Tool,
		Provider:      route.Provider,
		Model:         route.Model,
		Status:        model.JobStatusQueued,
		Progress:      0,
		Params:        req.Params,
		RecoveryState: model.RecoveryNone,
		AttemptCount:  1,
		CreatedAt:     time.Now(),
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Printf("[Jobs] Created %s job %s (provider=%s model=%s)", job.Tool, job.ID, job.Provider, job.Model)
	return job, nil
}

// GetJobStatus returns the current status view of a job owned by the
// caller's session. Before answering, it opportunistically heals one narrow
// class of stuck job (custom-provider stem isolation past the stem timeout
// with no artifacts) so the caller is not left watching a hang; the full
// sweep remains the real safety net.
func (s *JobService) GetJobStatus(ctx context.Context, sessionID, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err == store.ErrNotFound {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.SessionID != sessionID {
		return nil, ErrJobNotFound
	}

	if s.recovery != nil && s.recovery.StaleForInlineHeal(ctx, job) {
		if _, err := s.recovery.HealPassthroughStem(ctx, job); err != nil {
			log.Printf("[Jobs] Inline heal of job %s: %v", job.ID, err)
		}
		if refreshed, err := s.store.GetJob(ctx, jobID); err == nil {
			job = refreshed
		}
	}

	artifacts, err := s.store.ListArtifactsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	artifactIDs := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		artifactIDs = append(artifactIDs, a.ID)
	}

	return &model.JobStatusResponse{
		JobID:         job.ID,
		Status:        job.Status,
		Progress:      job.Progress,
		EtaSec:        job.EtaSec,
		RecoveryState: job.RecoveryState,
		AttemptCount:  job.AttemptCount,
		QualityFlags:  job.QualityFlags,
		ErrorCode:     job.ErrorCode,
		ArtifactIDs:   artifactIDs,
		CreatedAt:     job.CreatedAt,
		FinishedAt:    job.FinishedAt,
	}, nil
}
