package service

import "errors"

var (
	// ErrAssetNotFound is returned when the referenced asset does not
	// exist or is not owned by the caller's session.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrAssetNotReady is returned when the asset exists but its upload
	// has not completed or it has expired.
	ErrAssetNotReady = errors.New("asset not ready")
	// ErrJobNotFound is returned when a job does not exist or is not
	// owned by the caller's session.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTool is returned for an unknown tool type.
	ErrInvalidTool = errors.New("invalid tool type")
)
