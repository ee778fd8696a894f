package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/waveroom/api/internal/model"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, a *testApp, providerName string, body []byte, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+providerName, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	resp, err := a.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestWebhook_ValidProgressCallback(t *testing.T) {
	a := newTestApp(t)
	job := a.seedJob(t, func(j *model.Job) {
		j.ExternalJobID = "ext-77"
	})

	body := []byte(`{"externalJobId":"ext-77","status":"running","progressPct":60}`)
	resp := postWebhook(t, a, "custom", body, signBody(testWebhookSecret, body))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var ack model.WebhookAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.JobID != job.ID || ack.Status != model.JobStatusRunning {
		t.Errorf("ack = %+v", ack)
	}

	if got := a.getJob(t, job.ID); got.Progress != 60 {
		t.Errorf("progress = %d, want 60", got.Progress)
	}
}

func TestWebhook_SuccessCallbackMaterializesArtifacts(t *testing.T) {
	a := newTestApp(t)
	job := a.seedJob(t, func(j *model.Job) {
		j.ExternalJobID = "ext-88"
	})
	a.fetch.bodies["https://p.test/out/master.wav"] = []byte("mastered-audio")

	body := []byte(`{
		"externalJobId": "ext-88",
		"status": "succeeded",
		"artifacts": [{"name": "master.wav", "url": "https://p.test/out/master.wav", "format": "wav"}]
	}`)
	resp := postWebhook(t, a, "custom", body, signBody(testWebhookSecret, body))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := a.getJob(t, job.ID)
	if got.Status != model.JobStatusSucceeded || got.Progress != 100 {
		t.Errorf("job = status %s progress %d, want succeeded/100", got.Status, got.Progress)
	}
	artifacts, _ := a.store.ListArtifactsByJob(context.Background(), job.ID)
	if len(artifacts) != 1 {
		t.Errorf("artifacts = %d, want 1", len(artifacts))
	}
}

func TestWebhook_BadSignatureIsRejectedWithoutMutation(t *testing.T) {
	a := newTestApp(t)
	job := a.seedJob(t, func(j *model.Job) {
		j.ExternalJobID = "ext-99"
	})

	body := []byte(`{"externalJobId":"ext-99","status":"failed","errorCode":"forged"}`)
	resp := postWebhook(t, a, "custom", body, signBody("attacker-secret", body))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if got := a.getJob(t, job.ID); got.Status != model.JobStatusRunning {
		t.Errorf("forged callback mutated the job: %s", got.Status)
	}
}

func TestWebhook_MissingSignatureIsRejected(t *testing.T) {
	a := newTestApp(t)
	body := []byte(`{"externalJobId":"ext-1","status":"running"}`)

	resp := postWebhook(t, a, "custom", body, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebhook_UnknownProviderIs404(t *testing.T) {
	a := newTestApp(t)
	body := []byte(`{"externalJobId":"ext-1","status":"running"}`)

	resp := postWebhook(t, a, "acme", body, signBody(testWebhookSecret, body))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWebhook_UnknownExternalJobIs404(t *testing.T) {
	a := newTestApp(t)
	body := []byte(`{"externalJobId":"no-such-job","status":"running"}`)

	resp := postWebhook(t, a, "custom", body, signBody(testWebhookSecret, body))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWebhook_MalformedPayloadIs400(t *testing.T) {
	a := newTestApp(t)
	body := []byte(`{"externalJobId":"ext-1","status":"paused"}`)

	resp := postWebhook(t, a, "custom", body, signBody(testWebhookSecret, body))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebhook_ReplicateSuccess(t *testing.T) {
	a := newTestApp(t)
	job := a.seedJob(t, func(j *model.Job) {
		j.Provider = model.ProviderReplicate
		j.Model = "basic-pitch"
		j.Tool = model.ToolMIDIExtract
		j.ExternalJobID = "r8-abc"
	})
	a.fetch.bodies["https://r.test/out/melody.mid"] = []byte("MThd")

	body := []byte(`{"id":"r8-abc","status":"succeeded","output":"https://r.test/out/melody.mid"}`)
	resp := postWebhook(t, a, "replicate", body, signBody(testWebhookSecret, body))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := a.getJob(t, job.ID); got.Status != model.JobStatusSucceeded {
		t.Errorf("status = %s, want succeeded", got.Status)
	}
}

func TestSweepEndpoint_ReturnsSummary(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/recovery/sweep", nil)
	resp, err := a.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var summary model.SweepSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Scanned != 0 {
		t.Errorf("summary = %+v, want empty sweep", summary)
	}
}
