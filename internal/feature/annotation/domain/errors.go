// Package domain defines domain-level errors for the annotation feature.
package domain

import "errors"

// Domain errors for the annotation pipeline.
// These errors represent business logic failures and should be handled appropriately by upper layers.
// Everything the pipeline can fail with is mapped to one of these before it crosses the usecase boundary.
var (
	// ErrUnauthorized indicates a missing credential, an unknown client id,
	// or a mismatched secret. Authorization failures never trigger inference
	// or store work.
	ErrUnauthorized = errors.New("invalid client credentials")

	// ErrInvalidImage indicates the submitted payload is not a decodable
	// image of an accepted content type, or exceeds the upload size limit.
	ErrInvalidImage = errors.New("invalid or unsupported image")

	// ErrInferenceFailed indicates the detection capability itself failed.
	// The underlying cause is logged, never surfaced to callers.
	ErrInferenceFailed = errors.New("object detection failed")

	// ErrInvalidModelOutput indicates the detection capability returned data
	// that cannot be normalized (e.g. a class index outside the label table).
	ErrInvalidModelOutput = errors.New("detection model returned invalid output")

	// ErrConflictingID indicates an annotation with the same id already exists.
	ErrConflictingID = errors.New("annotation id already exists")

	// ErrStoreUnavailable indicates the backing index cannot be reached.
	// The store never retries; the caller applies bounded retries.
	ErrStoreUnavailable = errors.New("annotation store unavailable")

	// ErrAnnotationNotFound indicates no annotation exists for the given id.
	ErrAnnotationNotFound = errors.New("annotation not found")

	// ErrPersistenceFailed indicates the computed annotation could not be
	// persisted after the internal retry budget was exhausted.
	ErrPersistenceFailed = errors.New("failed to persist annotation")
)
