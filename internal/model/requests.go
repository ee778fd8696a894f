package model

import (
	"encoding/json"
	"time"
)

// CreateJobRequest is the body for POST /api/jobs
type CreateJobRequest struct {
	AssetID string          `json:"assetId" validate:"required,uuid4"`
	Tool    ToolType        `json:"tool" validate:"required"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// CreateJobResponse is returned when a job has been accepted
type CreateJobResponse struct {
	JobID         string        `json:"jobId"`
	Status        JobStatus     `json:"status"`
	Progress      int           `json:"progress"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	RecoveryState RecoveryState `json:"recoveryState"`
	AttemptCount  int           `json:"attemptCount"`
	QualityFlags  []string      `json:"qualityFlags,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// JobStatusResponse is returned by GET /api/jobs/:jobId
type JobStatusResponse struct {
	JobID         string        `json:"jobId"`
	Status        JobStatus     `json:"status"`
	Progress      int           `json:"progress"`
	EtaSec        *int          `json:"etaSec,omitempty"`
	RecoveryState RecoveryState `json:"recoveryState"`
	AttemptCount  int           `json:"attemptCount"`
	QualityFlags  []string      `json:"qualityFlags,omitempty"`
	ErrorCode     *string       `json:"errorCode,omitempty"`
	ArtifactIDs   []string      `json:"artifactIds"`
	CreatedAt     time.Time     `json:"createdAt"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty"`
}

// WebhookAck echoes the status a webhook resolved to
type WebhookAck struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// SweepSummary reports what a recovery sweep did
type SweepSummary struct {
	Scanned  int `json:"scanned"`
	Stale    int `json:"stale"`
	Retried  int `json:"retried"`
	Fallback int `json:"fallback"`
	Failed   int `json:"failed"`
}
