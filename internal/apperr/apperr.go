// Package apperr defines the typed error taxonomy shared across the relearn
// workflow and its bindings. Failures are values: every binding returns one of
// these types so the orchestrator can decide, per step, whether a failure is
// fatal or degrades the run.
package apperr

import "fmt"

// ConfigError indicates missing or invalid environment configuration.
// Always fatal, detected pre-flight before any side effect.
type ConfigError struct {
	Missing []string
	Msg     string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("config error: missing required environment variables: %v", e.Missing)
	}
	return "config error: " + e.Msg
}

// AuthError indicates a credential or auth-client construction failure.
// Always fatal.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProviderError indicates a storage-provider failure (listing, link
// creation, move). Soft per-item unless it occurs before any candidate is
// obtained, in which case the run aborts.
type ProviderError struct {
	Op     string
	FileID string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.FileID != "" {
		return fmt.Sprintf("provider error: %s %s: %v", e.Op, e.FileID, e.Err)
	}
	return fmt.Sprintf("provider error: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NotificationError indicates a publish failure. Degrades the run status to
// partial, never aborts.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification error: %v", e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// PersistenceError indicates a store read/write failure. Degrades the
// specific item, does not abort the batch.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// OcrKind classifies OCR extraction failures.
type OcrKind string

// OCR failure kinds.
const (
	OcrRateLimited  OcrKind = "rate_limited"
	OcrTimeout      OcrKind = "timeout"
	OcrInvalidImage OcrKind = "invalid_image"
	OcrAPIError     OcrKind = "api_error"
)

// OcrError indicates a text-extraction failure for a single image.
// Per-item, logged, never aborts the batch.
type OcrError struct {
	Kind OcrKind
	Msg  string
	Err  error
}

func (e *OcrError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ocr error (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("ocr error (%s): %s", e.Kind, e.Msg)
}

func (e *OcrError) Unwrap() error { return e.Err }
