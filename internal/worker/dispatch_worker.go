package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/waveroom/api/internal/client"
	"github.com/waveroom/api/internal/model"
	"github.com/waveroom/api/internal/queue"
	"github.com/waveroom/api/internal/store"
)

// DispatchWorker consumes queued jobs and submits them to the routed
// provider, recording the provider's own job id as the reconciliation key
// for later webhooks.
type DispatchWorker struct {
	store      store.Store
	submitters map[string]client.ToolSubmitter
}

func NewDispatchWorker(st store.Store, submitters map[string]client.ToolSubmitter) *DispatchWorker {
	return &DispatchWorker{
		store:      st,
		submitters: submitters,
	}
}

// ProcessTask handles one dispatch task.
func (w *DispatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal dispatch payload: %w", err)
	}

	job, err := w.store.GetJob(ctx, payload.JobID)
	if err == store.ErrNotFound {
		log.Printf("[Dispatch] Job %s no longer exists, dropping task", payload.JobID)
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		// a webhook or the sweeper resolved the job before dispatch ran
		return nil
	}

	submitter, ok := w.submitters[job.Provider]
	if !ok || !submitter.IsConfigured() {
		// leave the job queued; the sweeper will retry or time it out
		log.Printf("[Dispatch] Provider %s not configured, job %s stays queued", job.Provider, job.ID)
		return nil
	}

	asset, err := w.store.GetAsset(ctx, job.AssetID)
	if err != nil {
		return fmt.Errorf("failed to load asset for job %s: %w", job.ID, err)
	}

	externalID, err := submitter.SubmitTool(ctx, job, asset)
	if err != nil {
		// returning the error lets asynq retry the submission
		return fmt.Errorf("failed to submit job %s to %s: %w", job.ID, job.Provider, err)
	}

	_, err = w.store.UpdateJobIfActive(ctx, job.ID, func(j *model.Job) error {
		j.ExternalJobID = externalID
		return nil
	})
	if err == store.ErrJobTerminal {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record external id for job %s: %w", job.ID, err)
	}

	log.Printf("[Dispatch] Job %s submitted to %s as %s", job.ID, job.Provider, externalID)
	return nil
}
