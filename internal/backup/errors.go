package backup

import (
	"errors"
	"fmt"
)

// BackupError represents errors that occur during backup orchestration
type BackupError struct {
	Type    BackupErrorType `json:"type"`
	Message string          `json:"message"`
	Cause   error           `json:"-"`
}

// Error implements the error interface
func (e *BackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// BackupErrorType represents different types of backup errors
type BackupErrorType string

const (
	// BackupErrorTypeLockBusy means another orchestrator instance holds the
	// host lock; fatal for the whole invocation.
	BackupErrorTypeLockBusy BackupErrorType = "LOCK_BUSY"
	// BackupErrorTypePipeline means the dump or compression process failed,
	// or the artifact is implausibly small; fatal for that target only.
	BackupErrorTypePipeline BackupErrorType = "PIPELINE_ERROR"
	// BackupErrorTypeUpload means the object-storage upload failed; fatal
	// for that target only.
	BackupErrorTypeUpload BackupErrorType = "UPLOAD_ERROR"
	// BackupErrorTypeAnomaly means the post-upload size check failed; the
	// artifact is preserved offsite but the run is recorded as failed.
	BackupErrorTypeAnomaly BackupErrorType = "ANOMALY_ERROR"
	// BackupErrorTypeNotify means a healthcheck call exhausted its retries;
	// logged only, never changes a target's recorded outcome.
	BackupErrorTypeNotify BackupErrorType = "NOTIFY_ERROR"

	BackupErrorTypeRegistry      BackupErrorType = "REGISTRY_ERROR"
	BackupErrorTypeValidation    BackupErrorType = "VALIDATION_ERROR"
	BackupErrorTypeConfiguration BackupErrorType = "CONFIGURATION_ERROR"
	BackupErrorTypeStorage       BackupErrorType = "STORAGE_ERROR"
)

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, message string, cause error) *BackupError {
	return &BackupError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors
func NewLockBusyError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeLockBusy, message, cause)
}

func NewPipelineError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypePipeline, message, cause)
}

func NewUploadError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeUpload, message, cause)
}

func NewNotifyError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNotify, message, cause)
}

func NewRegistryError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeRegistry, message, cause)
}

func NewValidationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeValidation, message, cause)
}

func NewConfigurationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, message, cause)
}

func NewStorageError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeStorage, message, cause)
}

// AnomalyError carries the size-drift details of a failed verification.
type AnomalyError struct {
	PreviousBytes int64   `json:"previous_bytes"`
	CurrentBytes  int64   `json:"current_bytes"`
	DeltaPercent  float64 `json:"delta_percent"`
	Threshold     float64 `json:"threshold"`
}

// Error implements the error interface
func (e *AnomalyError) Error() string {
	return fmt.Sprintf("%s: artifact size differs from the previous one by %.2f%% (was %d bytes, now %d bytes, threshold %.1f%%)",
		BackupErrorTypeAnomaly, e.DeltaPercent, e.PreviousBytes, e.CurrentBytes, e.Threshold)
}

// errorIsType reports whether err or anything it wraps is a BackupError of
// the given type.
func errorIsType(err error, t BackupErrorType) bool {
	var be *BackupError
	if errors.As(err, &be) {
		return be.Type == t
	}
	return false
}

// IsLockBusy reports whether err indicates another running instance.
func IsLockBusy(err error) bool {
	return errorIsType(err, BackupErrorTypeLockBusy)
}

// IsPipelineError reports whether err is a pipeline failure.
func IsPipelineError(err error) bool {
	return errorIsType(err, BackupErrorTypePipeline)
}

// IsUploadError reports whether err is an upload failure.
func IsUploadError(err error) bool {
	return errorIsType(err, BackupErrorTypeUpload)
}

// IsAnomaly reports whether err is a post-upload size-drift failure.
func IsAnomaly(err error) bool {
	var ae *AnomalyError
	return errors.As(err, &ae)
}
