package model

import "time"

// Asset represents an uploaded source audio file. Assets are created by the
// upload/ingest service; this service only reads them.
type Asset struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	StorageKey  string    `json:"storageKey"`
	StorageURL  string    `json:"storageUrl,omitempty"` // empty until upload completes
	DurationSec float64   `json:"durationSec"`
	SampleRate  int       `json:"sampleRate"`
	Channels    int       `json:"channels"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Ready reports whether the asset can back a new job.
func (a *Asset) Ready(now time.Time) bool {
	return a.StorageURL != "" && now.Before(a.ExpiresAt)
}
