package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/waveroom/api/internal/config"
	"github.com/waveroom/api/internal/model"
)

// CustomClient submits jobs to the self-hosted inference service, which
// reports back through the generic webhook shape.
type CustomClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	webhookURL string
}

type customRunRequest struct {
	Tool        string          `json:"tool"`
	AudioURL    string          `json:"audioUrl"`
	Model       string          `json:"model,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	CallbackURL string          `json:"callbackUrl,omitempty"`
}

type customRunResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

func NewCustomClient(cfg *config.CustomConfig, webhookURL string) *CustomClient {
	return &CustomClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		webhookURL: webhookURL,
	}
}

// SubmitTool starts a tool run on the inference service.
func (c *CustomClient) SubmitTool(ctx context.Context, job *model.Job, asset *model.Asset) (string, error) {
	req := &customRunRequest{
		Tool:        string(job.Tool),
		AudioURL:    asset.StorageURL,
		Model:       job.Model,
		Params:      job.Params,
		CallbackURL: c.webhookURL,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tools/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("inference service request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read inference response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("inference service error (status %d): %s", resp.StatusCode, string(data))
	}

	var out customRunResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse inference response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("inference service returned no job id")
	}

	log.Printf("[Custom] Submitted job %s as %s (%s)", job.ID, out.JobID, out.Status)
	return out.JobID, nil
}

// IsConfigured returns true if a service URL is set.
func (c *CustomClient) IsConfigured() bool {
	return c.baseURL != ""
}
