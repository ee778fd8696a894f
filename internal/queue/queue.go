package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/waveroom/api/internal/model"
)

const (
	// TaskTypeDispatch hands a queued job to the dispatch worker, which
	// submits it to the routed provider.
	TaskTypeDispatch = "tool:dispatch"

	// QueueTools is the asynq queue name all tool jobs flow through.
	QueueTools = "tools"
)

// DispatchPayload is the asynq task body.
type DispatchPayload struct {
	JobID string `json:"jobId"`
}

// Queue is the ordered work-distribution channel between job creation and
// the dispatch worker. Dequeue removes a specific job (by id) after a
// terminal transition so the queue cannot drift from the store.
type Queue interface {
	Enqueue(ctx context.Context, job *model.Job) error
	Dequeue(ctx context.Context, jobID string) error
	Depth(ctx context.Context) (int, error)
}

// AsynqQueue implements Queue on asynq. The asynq task id is the job id, so
// a job can be dequeued without scanning.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewAsynqQueue(client *asynq.Client, inspector *asynq.Inspector) *AsynqQueue {
	return &AsynqQueue{client: client, inspector: inspector}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, job *model.Job) error {
	payload, err := json.Marshal(DispatchPayload{JobID: job.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeDispatch, payload)
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueTools),
		asynq.TaskID(job.ID),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// re-enqueue of a job the worker has not consumed yet
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Dequeue(ctx context.Context, jobID string) error {
	err := q.inspector.DeleteTask(QueueTools, jobID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return nil // already consumed or never enqueued
	case errors.Is(err, asynq.ErrTaskIDConflict):
		return nil
	default:
		return fmt.Errorf("failed to dequeue job: %w", err)
	}
}

func (q *AsynqQueue) Depth(ctx context.Context) (int, error) {
	info, err := q.inspector.GetQueueInfo(QueueTools)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return info.Pending + info.Active + info.Retry + info.Scheduled, nil
}
