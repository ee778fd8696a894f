package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/waveroom/api/internal/model"
)

const (
	jobKeyPrefix      = "job:"
	jobExtKeyPrefix   = "job:ext:"
	assetKeyPrefix    = "asset:"
	artifactKeyPrefix = "artifact:"
	activeJobsKey     = "jobs:active"
	jobArtifactsKey   = "job:artifacts:" // set of artifact ids per job

	// conditional updates retry a few times on WATCH conflicts before
	// giving up; conflicts are rare (sweep racing a webhook)
	txMaxRetries = 5
)

// RedisStore keeps job, asset and artifact records as JSON values in Redis.
// Conditional job updates use WATCH so that whichever writer observes a
// non-terminal job first wins and the loser becomes a no-op.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a store over an existing Redis client. Records are
// retained for ttl after their last write.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string      { return jobKeyPrefix + id }
func assetKey(id string) string    { return assetKeyPrefix + id }
func artifactKey(id string) string { return artifactKeyPrefix + id }

func jobExtKey(provider, externalID string) string {
	return fmt.Sprintf("%s%s:%s", jobExtKeyPrefix, provider, externalID)
}

func (s *RedisStore) CreateJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, jobKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if !ok {
		return ErrConflict
	}

	pipe := s.rdb.Pipeline()
	pipe.SAdd(ctx, activeJobsKey, job.ID)
	if job.ExternalJobID != "" {
		pipe.Set(ctx, jobExtKey(job.Provider, job.ExternalJobID), job.ID, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}
	return nil
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) GetJobByExternalID(ctx context.Context, provider, externalID string) (*model.Job, error) {
	id, err := s.rdb.Get(ctx, jobExtKey(provider, externalID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve external job id: %w", err)
	}
	return s.GetJob(ctx, id)
}

func (s *RedisStore) UpdateJobIfActive(ctx context.Context, id string, mutate func(*model.Job) error) (*model.Job, error) {
	var updated *model.Job

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, jobKey(id)).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		if job.Status.IsTerminal() {
			return ErrJobTerminal
		}

		prevExt := job.ExternalJobID
		if err := mutate(&job); err != nil {
			return err
		}

		out, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(id), out, s.ttl)
			if job.ExternalJobID != "" && job.ExternalJobID != prevExt {
				pipe.Set(ctx, jobExtKey(job.Provider, job.ExternalJobID), job.ID, s.ttl)
			}
			if job.Status.IsTerminal() {
				pipe.SRem(ctx, activeJobsKey, job.ID)
			}
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	for i := 0; i < txMaxRetries; i++ {
		err := s.rdb.Watch(ctx, txn, jobKey(id))
		if err == redis.TxFailedErr {
			continue // another writer got there first, re-read and retry
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("job update contention on %s", id)
}

func (s *RedisStore) ListJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	ids, err := s.rdb.SMembers(ctx, activeJobsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}

	var jobs []*model.Job
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err == ErrNotFound {
			// record expired out from under the index
			s.rdb.SRem(ctx, activeJobsKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.Status == status {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (s *RedisStore) CreateAsset(ctx context.Context, asset *model.Asset) error {
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("failed to marshal asset: %w", err)
	}
	if err := s.rdb.Set(ctx, assetKey(asset.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

func (s *RedisStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	data, err := s.rdb.Get(ctx, assetKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	var asset model.Asset
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal asset: %w", err)
	}
	return &asset, nil
}

func (s *RedisStore) CreateArtifact(ctx context.Context, artifact *model.Artifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, artifactKey(artifact.ID), data, s.ttl)
	pipe.SAdd(ctx, jobArtifactsKey+artifact.JobID, artifact.ID)
	pipe.Expire(ctx, jobArtifactsKey+artifact.JobID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

func (s *RedisStore) ListArtifactsByJob(ctx context.Context, jobID string) ([]*model.Artifact, error) {
	ids, err := s.rdb.SMembers(ctx, jobArtifactsKey+jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	artifacts := make([]*model.Artifact, 0, len(ids))
	for _, id := range ids {
		data, err := s.rdb.Get(ctx, artifactKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get artifact: %w", err)
		}
		var a model.Artifact
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
		}
		artifacts = append(artifacts, &a)
	}

	// set members come back unordered
	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
		}
		return artifacts[i].ID < artifacts[j].ID
	})
	return artifacts, nil
}
