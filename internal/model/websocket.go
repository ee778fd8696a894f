package model

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
)

// WSStatusMessage is pushed to /ws/jobs/:jobId subscribers on every
// job-state transition.
type WSStatusMessage struct {
	Type          string        `json:"type"`
	JobID         string        `json:"jobId"`
	Status        JobStatus     `json:"status"`
	Progress      int           `json:"progress"`
	RecoveryState RecoveryState `json:"recoveryState"`
	ErrorCode     *string       `json:"errorCode,omitempty"`
}
