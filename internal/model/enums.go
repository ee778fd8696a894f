package model

// Tool types
type ToolType string

const (
	ToolStemIsolation ToolType = "stem_isolation"
	ToolMastering     ToolType = "mastering"
	ToolKeyBPM        ToolType = "key_bpm"
	ToolLoudness      ToolType = "loudness_report"
	ToolMIDIExtract   ToolType = "midi_extract"
)

var ValidToolTypes = []ToolType{
	ToolStemIsolation, ToolMastering, ToolKeyBPM, ToolLoudness, ToolMIDIExtract,
}

// IsValid reports whether t is a known tool type.
func (t ToolType) IsValid() bool {
	for _, v := range ValidToolTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusExpired   JobStatus = "expired"
)

// IsTerminal reports whether the status admits no further transition.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusExpired:
		return true
	}
	return false
}

// Recovery states
type RecoveryState string

const (
	RecoveryNone             RecoveryState = "none"
	RecoveryRetrying         RecoveryState = "retrying"
	RecoveryDegradedFallback RecoveryState = "degraded_fallback"
	RecoveryFailedAfterRetry RecoveryState = "failed_after_retry"
)

// Quality flags
const (
	QualityFlagProviderFailure     = "provider_failure"
	QualityFlagFallbackPassthrough = "fallback_passthrough_output"
)

// Error codes written to Job.ErrorCode
const (
	ErrCodeProviderError        = "provider_error"
	ErrCodeJobTimedOut          = "job_timed_out"
	ErrCodeStaleJobMissingAsset = "stale_job_missing_asset"
)

// Provider names
const (
	ProviderReplicate = "replicate"
	ProviderCustom    = "custom"
)
