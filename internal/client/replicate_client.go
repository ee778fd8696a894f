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

// ToolSubmitter hands a job to an external inference provider and returns
// the provider's own job id.
type ToolSubmitter interface {
	SubmitTool(ctx context.Context, job *model.Job, asset *model.Asset) (string, error)
	IsConfigured() bool
}

// ReplicateClient submits predictions to the Replicate API.
type ReplicateClient struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	webhookURL string // callback endpoint for this provider
}

type replicatePredictionRequest struct {
	Version             string                 `json:"version"`
	Input               map[string]interface{} `json:"input"`
	Webhook             string                 `json:"webhook,omitempty"`
	WebhookEventsFilter []string               `json:"webhook_events_filter,omitempty"`
}

type replicatePredictionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func NewReplicateClient(cfg *config.ReplicateConfig, webhookURL string) *ReplicateClient {
	return &ReplicateClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiToken:   cfg.APIToken,
		webhookURL: webhookURL,
	}
}

// SubmitTool creates a prediction for the job's model against the asset.
func (c *ReplicateClient) SubmitTool(ctx context.Context, job *model.Job, asset *model.Asset) (string, error) {
	input := map[string]interface{}{
		"audio": asset.StorageURL,
	}
	if len(job.Params) > 0 {
		var params map[string]interface{}
		if err := json.Unmarshal(job.Params, &params); err == nil {
			for k, v := range params {
				input[k] = v
			}
		}
	}

	req := &replicatePredictionRequest{
		Version:             job.Model,
		Input:               input,
		Webhook:             c.webhookURL,
		WebhookEventsFilter: []string{"start", "output", "completed"},
	}

	var resp replicatePredictionResponse
	if err := c.post(ctx, "/v1/predictions", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("replicate returned no prediction id")
	}

	log.Printf("[Replicate] Submitted job %s as prediction %s (%s)", job.ID, resp.ID, resp.Status)
	return resp.ID, nil
}

func (c *ReplicateClient) post(ctx context.Context, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read replicate response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("replicate error (status %d): %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse replicate response: %w", err)
	}
	return nil
}

// IsConfigured returns true if an API token is set.
func (c *ReplicateClient) IsConfigured() bool {
	return c.apiToken != ""
}
