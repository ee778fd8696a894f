package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/waveroom/api/internal/model"
)

func (a *testApp) doJSON(t *testing.T, method, path, token string, payload interface{}) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestCreateJobEndpoint_Accepted(t *testing.T) {
	a := newTestApp(t)
	asset := a.seedAsset(t, "sess-1")
	token := a.sessionToken(t, "sess-1")

	resp := a.doJSON(t, http.MethodPost, "/api/jobs", token, model.CreateJobRequest{
		AssetID: asset.ID,
		Tool:    model.ToolStemIsolation,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out model.CreateJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Status != model.JobStatusQueued {
		t.Errorf("status = %s, want queued", out.Status)
	}
	if out.Provider != model.ProviderCustom || out.Model != "htdemucs-ft" {
		t.Errorf("routed to %s/%s", out.Provider, out.Model)
	}
	if !a.queue.Contains(out.JobID) {
		t.Error("job not enqueued")
	}
}

func TestCreateJobEndpoint_RequiresAuth(t *testing.T) {
	a := newTestApp(t)

	resp := a.doJSON(t, http.MethodPost, "/api/jobs", "", model.CreateJobRequest{
		AssetID: "whatever",
		Tool:    model.ToolMastering,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateJobEndpoint_GarbageTokenRejected(t *testing.T) {
	a := newTestApp(t)

	resp := a.doJSON(t, http.MethodPost, "/api/jobs", "not-a-jwt", model.CreateJobRequest{
		AssetID: "whatever",
		Tool:    model.ToolMastering,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateJobEndpoint_ValidationFailure(t *testing.T) {
	a := newTestApp(t)
	token := a.sessionToken(t, "sess-1")

	// assetId must be a uuid4
	resp := a.doJSON(t, http.MethodPost, "/api/jobs", token, map[string]string{
		"assetId": "not-a-uuid",
		"tool":    "mastering",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateJobEndpoint_UnknownAssetIs404(t *testing.T) {
	a := newTestApp(t)
	token := a.sessionToken(t, "sess-1")

	resp := a.doJSON(t, http.MethodPost, "/api/jobs", token, model.CreateJobRequest{
		AssetID: "7a0f0c3e-1dc9-4f7e-9b1a-0c9a6d2f3b4e",
		Tool:    model.ToolMastering,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestJobStatusEndpoint_OwnerSeesJob(t *testing.T) {
	a := newTestApp(t)
	job := a.seedJob(t, func(j *model.Job) {
		j.SessionID = "sess-owner"
		j.Progress = 33
	})
	token := a.sessionToken(t, "sess-owner")

	resp := a.doJSON(t, http.MethodGet, "/api/jobs/"+job.ID, token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out model.JobStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.JobID != job.ID || out.Progress != 33 {
		t.Errorf("response = %+v", out)
	}
	if out.ArtifactIDs == nil {
		t.Error("artifactIds should be present even when empty")
	}
}

func TestJobStatusEndpoint_CrossSessionIs404(t *testing.T) {
	a := newTestApp(t)
	job := a.seedJob(t, func(j *model.Job) {
		j.SessionID = "sess-owner"
	})
	token := a.sessionToken(t, "sess-intruder")

	resp := a.doJSON(t, http.MethodGet, "/api/jobs/"+job.ID, token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestJobStatusEndpoint_UnknownJobIs404(t *testing.T) {
	a := newTestApp(t)
	token := a.sessionToken(t, "sess-1")

	resp := a.doJSON(t, http.MethodGet, "/api/jobs/nope", token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
