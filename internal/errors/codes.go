// Package errors provides structured error handling for recidx.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Snapshot I/O errors
//   - 3XX: Source network errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//   - 6XX: Lookup errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates snapshot file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates source fetch errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryLookup indicates a lookup that resolved to nothing.
	CategoryLookup Category = "LOOKUP"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_102_CONFIG_INVALID"

	// Snapshot errors (200-299)
	ErrCodeSnapshotMissing = "ERR_201_SNAPSHOT_MISSING"
	ErrCodeSnapshotStale   = "ERR_202_SNAPSHOT_STALE"
	ErrCodeSnapshotCorrupt = "ERR_203_SNAPSHOT_CORRUPT"
	ErrCodeSnapshotWrite   = "ERR_204_SNAPSHOT_WRITE"
	ErrCodeSnapshotLock    = "ERR_205_SNAPSHOT_LOCK"

	// Source errors (300-399)
	ErrCodeSourceTimeout     = "ERR_301_SOURCE_TIMEOUT"
	ErrCodeSourceUnavailable = "ERR_302_SOURCE_UNAVAILABLE"
	ErrCodeSourceStatus      = "ERR_303_SOURCE_STATUS"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeQueryTooShort = "ERR_402_QUERY_TOO_SHORT"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeRefreshInProgress = "ERR_502_REFRESH_IN_PROGRESS"
	ErrCodeIngestFailed      = "ERR_503_INGEST_FAILED"
	ErrCodeTelemetry         = "ERR_504_TELEMETRY"

	// Lookup errors (600-699)
	ErrCodeRecordNotFound = "ERR_601_RECORD_NOT_FOUND"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_102_CONFIG_INVALID"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '6':
		return CategoryLookup
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeSnapshotWrite:
		return SeverityFatal
	case ErrCodeSnapshotMissing, ErrCodeSnapshotStale, ErrCodeSnapshotCorrupt,
		ErrCodeRefreshInProgress:
		// The caller falls back (full reload) or simply tries later.
		return SeverityWarning
	case ErrCodeRecordNotFound:
		return SeverityInfo
	}

	// Source failures skip one source for one cycle.
	if categoryFromCode(code) == CategoryNetwork {
		return SeverityWarning
	}

	return SeverityError
}
