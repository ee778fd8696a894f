package model

import (
	"encoding/json"
	"time"
)

// Job represents one request to run one tool against one asset.
type Job struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"sessionId"`
	AssetID        string          `json:"assetId"`
	Tool           ToolType        `json:"tool"`
	Provider       string          `json:"provider"`
	Model          string          `json:"model"`
	Status         JobStatus       `json:"status"`
	Progress       int             `json:"progress"`
	EtaSec         *int            `json:"etaSec,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	ErrorCode      *string         `json:"errorCode,omitempty"`
	ExternalJobID  string          `json:"externalJobId,omitempty"`
	RecoveryState  RecoveryState   `json:"recoveryState"`
	AttemptCount   int             `json:"attemptCount"`
	QualityFlags   []string        `json:"qualityFlags,omitempty"`
	LastRecoveryAt *time.Time      `json:"lastRecoveryAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`
}

// AddQualityFlag appends flag if not already present.
func (j *Job) AddQualityFlag(flag string) {
	for _, f := range j.QualityFlags {
		if f == flag {
			return
		}
	}
	j.QualityFlags = append(j.QualityFlags, flag)
}

// HasQualityFlag reports whether flag is set on the job.
func (j *Job) HasQualityFlag(flag string) bool {
	for _, f := range j.QualityFlags {
		if f == flag {
			return true
		}
	}
	return false
}
