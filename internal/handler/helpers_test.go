package handler

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/waveroom/api/internal/auth"
	"github.com/waveroom/api/internal/client"
	"github.com/waveroom/api/internal/config"
	"github.com/waveroom/api/internal/middleware"
	"github.com/waveroom/api/internal/model"
	"github.com/waveroom/api/internal/provider"
	"github.com/waveroom/api/internal/queue"
	"github.com/waveroom/api/internal/service"
	"github.com/waveroom/api/internal/store"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testWebhookSecret = "test-webhook-secret"
)

// stubFetcher serves canned bodies for known URLs and 404s everything else.
type stubFetcher struct {
	bodies map[string][]byte
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*client.FetchResult, error) {
	body, ok := f.bodies[url]
	if !ok {
		return &client.FetchResult{OK: false, StatusCode: 404}, nil
	}
	return &client.FetchResult{OK: true, StatusCode: 200, Body: body, ContentType: "audio/wav"}, nil
}

type testApp struct {
	app   *fiber.App
	store *store.MemoryStore
	queue *queue.MemoryQueue
	fetch *stubFetcher
}

// newTestApp wires the full HTTP surface against in-memory backends the
// same way cmd/server does against Redis.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	st := store.NewMemoryStore()
	q := queue.NewMemoryQueue()
	fetch := &stubFetcher{bodies: map[string][]byte{}}
	storage := client.NewMockStorage("https://cdn.test")

	material := service.NewMaterializer(storage, fetch, st, 4, time.Hour)
	recovery := service.NewRecoveryService(st, q, material, nil, config.RecoveryConfig{
		QueuedStaleMin:  15,
		RunningStaleMin: 30,
		StemTimeoutSec:  210,
		MaxAttempts:     3,
	})
	reconciler := service.NewReconcileService(st, q, material, nil)
	jobs := service.NewJobService(st, q, recovery)

	registry := provider.NewRegistry(map[string]string{
		"replicate": testWebhookSecret,
		"custom":    testWebhookSecret,
	})

	jobHandler := NewJobHandler(jobs, validator.New())
	webhookHandler := NewWebhookHandler(registry, reconciler)
	recoveryHandler := NewRecoveryHandler(recovery)

	authMW := middleware.NewAuthMiddleware(testJWTSecret)

	app := fiber.New()
	api := app.Group("/api", authMW.Authenticate())
	api.Post("/jobs", jobHandler.Create)
	api.Get("/jobs/:jobId", jobHandler.Status)
	app.Post("/webhooks/:provider", webhookHandler.Receive)
	app.Post("/admin/recovery/sweep", recoveryHandler.Sweep)

	return &testApp{app: app, store: st, queue: q, fetch: fetch}
}

func (a *testApp) sessionToken(t *testing.T, sessionID string) string {
	t.Helper()
	token, err := auth.GenerateSessionToken(sessionID, testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign session token: %v", err)
	}
	return token
}

func (a *testApp) seedAsset(t *testing.T, sessionID string) *model.Asset {
	t.Helper()
	asset := &model.Asset{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		StorageKey: "assets/" + sessionID + "/source.wav",
		StorageURL: "https://cdn.test/assets/" + sessionID + "/source.wav",
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}
	if err := a.store.CreateAsset(context.Background(), asset); err != nil {
		t.Fatalf("failed to seed asset: %v", err)
	}
	return asset
}

func (a *testApp) seedJob(t *testing.T, mutate func(*model.Job)) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:            uuid.New().String(),
		SessionID:     uuid.New().String(),
		AssetID:       uuid.New().String(),
		Tool:          model.ToolMastering,
		Provider:      model.ProviderCustom,
		Model:         "matchering-v2",
		Status:        model.JobStatusRunning,
		RecoveryState: model.RecoveryNone,
		AttemptCount:  1,
		CreatedAt:     time.Now(),
	}
	if mutate != nil {
		mutate(job)
	}
	if err := a.store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}
	return job
}

func (a *testApp) getJob(t *testing.T, id string) *model.Job {
	t.Helper()
	job, err := a.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to get job %s: %v", id, err)
	}
	return job
}
