package store

import (
	"context"
	"errors"

	"github.com/waveroom/api/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("record already exists")
	// ErrJobTerminal is returned by conditional updates when the job has
	// already reached a terminal status. Callers treat it as "the other
	// writer won" and no-op.
	ErrJobTerminal = errors.New("job already terminal")
)

// JobStore is the durable keyed storage for jobs. All mutations after
// creation go through UpdateJobIfActive so that a late webhook and a
// concurrent sweep cannot overwrite a terminal state.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	// GetJobByExternalID resolves a provider's own job id back to ours.
	GetJobByExternalID(ctx context.Context, provider, externalID string) (*model.Job, error)
	// UpdateJobIfActive applies mutate to the current job record and
	// persists the result, but only while the job is non-terminal.
	// Returns ErrJobTerminal without persisting if the job already
	// finished, and the updated job on success.
	UpdateJobIfActive(ctx context.Context, id string, mutate func(*model.Job) error) (*model.Job, error)
	// ListJobsByStatus returns all jobs currently in the given status.
	// Only non-terminal statuses are indexed; the sweeper filters by age.
	ListJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
}

// AssetStore reads source assets created by the upload service.
type AssetStore interface {
	CreateAsset(ctx context.Context, asset *model.Asset) error
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
}

// ArtifactStore persists materialized job outputs.
type ArtifactStore interface {
	CreateArtifact(ctx context.Context, artifact *model.Artifact) error
	ListArtifactsByJob(ctx context.Context, jobID string) ([]*model.Artifact, error)
}

// Store aggregates the three record stores behind one dependency.
type Store interface {
	JobStore
	AssetStore
	ArtifactStore
}
