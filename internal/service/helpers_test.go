package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/waveroom/api/internal/client"
	"github.com/waveroom/api/internal/model"
	"github.com/waveroom/api/internal/queue"
	"github.com/waveroom/api/internal/store"
)

// fakeStorage records uploads and synthesizes URLs.
type fakeStorage struct {
	mu      sync.Mutex
	uploads map[string][]byte // key → body
	failAll bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploads: make(map[string][]byte)}
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if f.failAll {
		return "", fmt.Errorf("storage unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.uploads[key] = data
	f.mu.Unlock()
	return "https://cdn.test/" + key, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeStorage) GetPublicURL(key string) string { return "https://cdn.test/" + key }

// fakeFetcher serves canned responses per URL. Unknown URLs get a 404
// soft failure.
type fakeFetcher struct {
	responses map[string]*client.FetchResult
	errs      map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]*client.FetchResult),
		errs:      make(map[string]error),
	}
}

func (f *fakeFetcher) serve(url string, body []byte) {
	f.responses[url] = &client.FetchResult{OK: true, StatusCode: 200, Body: body, ContentType: "audio/wav"}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*client.FetchResult, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if res, ok := f.responses[url]; ok {
		return res, nil
	}
	return &client.FetchResult{OK: false, StatusCode: 404}, nil
}

type testEnv struct {
	store    *store.MemoryStore
	queue    *queue.MemoryQueue
	storage  *fakeStorage
	fetcher  *fakeFetcher
	material *Materializer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	q := queue.NewMemoryQueue()
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	return &testEnv{
		store:    st,
		queue:    q,
		storage:  storage,
		fetcher:  fetcher,
		material: NewMaterializer(storage, fetcher, st, 4, time.Hour),
	}
}

// seedAsset creates a ready-to-use asset for the session.
func (e *testEnv) seedAsset(t *testing.T, sessionID string) *model.Asset {
	t.Helper()
	asset := &model.Asset{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		StorageKey: "assets/" + sessionID + "/source.wav",
		StorageURL: "https://cdn.test/assets/" + sessionID + "/source.wav",
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}
	if err := e.store.CreateAsset(context.Background(), asset); err != nil {
		t.Fatalf("failed to seed asset: %v", err)
	}
	return asset
}

// seedJob creates a job directly in the store, bypassing the API, so tests
// can shape its age, attempts and external id.
func (e *testEnv) seedJob(t *testing.T, mutate func(*model.Job)) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:            uuid.New().String(),
		SessionID:     uuid.New().String(),
		AssetID:       uuid.New().String(),
		Tool:          model.ToolMastering,
		Provider:      model.ProviderCustom,
		Model:         "matchering-v2",
		Status:        model.JobStatusQueued,
		RecoveryState: model.RecoveryNone,
		AttemptCount:  1,
		CreatedAt:     time.Now(),
	}
	if mutate != nil {
		mutate(job)
	}
	if err := e.store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}
	return job
}

func (e *testEnv) getJob(t *testing.T, id string) *model.Job {
	t.Helper()
	job, err := e.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to get job %s: %v", id, err)
	}
	return job
}
