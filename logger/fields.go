package logger

import (
	"time"
)

// Standard field keys for structured logging.
const (
	FieldService     = "service"
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldJobID       = "job_id"
	FieldStage       = "stage"
	FieldState       = "state"
	FieldFingerprint = "fingerprint"
	FieldSource      = "source"
	FieldAttempt     = "attempt"
	FieldOperation   = "operation"
	FieldStatus      = "status"
	FieldError       = "error"
	FieldErrorCode   = "error_code"
	FieldDuration    = "duration_ms"
	FieldBytes       = "bytes"
)

// Fields builds a field map from alternating key-value pairs.
//
//	log.Info("fetched", logger.Fields("bytes", n, "source", src))
func Fields(kvs ...any) map[string]any {
	m := make(map[string]any, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]any {
	return map[string]any{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// StageFields creates fields for a finished pipeline stage.
func StageFields(stage string, d time.Duration) map[string]any {
	return map[string]any{
		FieldStage:    stage,
		FieldDuration: d.Milliseconds(),
	}
}
