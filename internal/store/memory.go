package store

import (
	"context"
	"sync"

	"github.com/waveroom/api/internal/model"
)

// MemoryStore is an in-process Store used by tests and local development
// without Redis. Same conditional-update semantics as RedisStore.
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	extIndex  map[string]string // provider:externalID → jobID
	assets    map[string]*model.Asset
	artifacts map[string][]*model.Artifact // jobID → artifacts in creation order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*model.Job),
		extIndex:  make(map[string]string),
		assets:    make(map[string]*model.Asset),
		artifacts: make(map[string][]*model.Artifact),
	}
}

func extIndexKey(provider, externalID string) string {
	return provider + ":" + externalID
}

func copyJob(j *model.Job) *model.Job {
	c := *j
	if j.QualityFlags != nil {
		c.QualityFlags = append([]string(nil), j.QualityFlags...)
	}
	return &c
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrConflict
	}
	s.jobs[job.ID] = copyJob(job)
	if job.ExternalJobID != "" {
		s.extIndex[extIndexKey(job.Provider, job.ExternalJobID)] = job.ID
	}
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (s *MemoryStore) GetJobByExternalID(ctx context.Context, provider, externalID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.extIndex[extIndexKey(provider, externalID)]
	if !ok {
		return nil, ErrNotFound
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (s *MemoryStore) UpdateJobIfActive(ctx context.Context, id string, mutate func(*model.Job) error) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if job.Status.IsTerminal() {
		return nil, ErrJobTerminal
	}

	next := copyJob(job)
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.jobs[id] = next
	if next.ExternalJobID != "" {
		s.extIndex[extIndexKey(next.Provider, next.ExternalJobID)] = next.ID
	}
	return copyJob(next), nil
}

func (s *MemoryStore) ListJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*model.Job
	for _, job := range s.jobs {
		if job.Status == status {
			jobs = append(jobs, copyJob(job))
		}
	}
	return jobs, nil
}

func (s *MemoryStore) CreateAsset(ctx context.Context, asset *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[asset.ID]; ok {
		return ErrConflict
	}
	c := *asset
	s.assets[asset.ID] = &c
	return nil
}

func (s *MemoryStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *asset
	return &c, nil
}

func (s *MemoryStore) CreateArtifact(ctx context.Context, artifact *model.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *artifact
	s.artifacts[artifact.JobID] = append(s.artifacts[artifact.JobID], &c)
	return nil
}

func (s *MemoryStore) ListArtifactsByJob(ctx context.Context, jobID string) ([]*model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.artifacts[jobID]
	out := make([]*model.Artifact, 0, len(list))
	for _, a := range list {
		c := *a
		out = append(out, &c)
	}
	return out, nil
}
