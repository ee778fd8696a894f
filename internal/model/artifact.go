package model

import "time"

// Artifact represents one output file produced for a job. Artifacts are
// created exclusively by the materializer after a job reaches succeeded.
type Artifact struct {
	ID         string    `json:"id"`
	JobID      string    `json:"jobId"`
	SessionID  string    `json:"sessionId"` // denormalized for session-scoped queries
	StorageKey string    `json:"storageKey"`
	StorageURL string    `json:"storageUrl"`
	Format     string    `json:"format"` // lowercase extension, e.g. "wav"
	SizeBytes  int64     `json:"sizeBytes"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}
