package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Generic request errors.
const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField       ErrorCode = "MISSING_FIELD"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage            ErrorCode = "STORAGE_ERROR"
)

// Fetch stage errors.
const (
	// ErrCodeUnreachable covers network, DNS, connection and upstream 404/5xx failures.
	ErrCodeUnreachable ErrorCode = "FETCH_UNREACHABLE"
	// ErrCodeFetchForbidden means the remote host refused access or is blocked by policy.
	ErrCodeFetchForbidden ErrorCode = "FETCH_FORBIDDEN"
	// ErrCodeTooLarge means the content exceeded the configured byte cap.
	ErrCodeTooLarge ErrorCode = "FETCH_TOO_LARGE"
	// ErrCodeFetchTimeout means the fetch deadline elapsed.
	ErrCodeFetchTimeout ErrorCode = "FETCH_TIMEOUT"
	// ErrCodeUnsupportedSource means the reference is malformed or its host is unsupported.
	ErrCodeUnsupportedSource ErrorCode = "UNSUPPORTED_SOURCE"
)

// Normalize stage errors. All terminal.
const (
	ErrCodeUnsupportedCodec ErrorCode = "UNSUPPORTED_CODEC"
	ErrCodeCorruptMedia     ErrorCode = "CORRUPT_MEDIA"
	ErrCodeEmptyAudio       ErrorCode = "EMPTY_AUDIO"
)

// Inference errors.
const (
	ErrCodeInferenceFailure  ErrorCode = "INFERENCE_FAILURE"
	ErrCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
)

// Pipeline control errors.
const (
	ErrCodeStageTimeout ErrorCode = "STAGE_TIMEOUT"
	ErrCodeOverloaded   ErrorCode = "OVERLOADED"
	ErrCodeCancelled    ErrorCode = "CANCELLED"
)

// Kind groups error codes into the families reported on a failed job.
type Kind string

const (
	KindFetch     Kind = "fetch"
	KindNormalize Kind = "normalize"
	KindInference Kind = "inference"
	KindStage     Kind = "stage"
	KindAdmission Kind = "admission"
	KindCancel    Kind = "cancel"
	KindRequest   Kind = "request"
	KindInternal  Kind = "internal"
)

var codeKinds = map[ErrorCode]Kind{
	ErrCodeUnreachable:       KindFetch,
	ErrCodeFetchForbidden:    KindFetch,
	ErrCodeTooLarge:          KindFetch,
	ErrCodeFetchTimeout:      KindFetch,
	ErrCodeUnsupportedSource: KindFetch,
	ErrCodeUnsupportedCodec:  KindNormalize,
	ErrCodeCorruptMedia:      KindNormalize,
	ErrCodeEmptyAudio:        KindNormalize,
	ErrCodeInferenceFailure:  KindInference,
	ErrCodeResourceExhausted: KindInference,
	ErrCodeStageTimeout:      KindStage,
	ErrCodeOverloaded:        KindAdmission,
	ErrCodeCancelled:         KindCancel,
	ErrCodeInternal:          KindInternal,
	ErrCodeStorage:           KindInternal,
}

// KindOf returns the family of an error code. Unknown codes are request errors.
func KindOf(code ErrorCode) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindRequest
}

// Only these are retried inside the pipeline; everything else is terminal for a job.
var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeTimeout:            true,
	ErrCodeStorage:            true,
	ErrCodeUnreachable:        true,
	ErrCodeFetchTimeout:       true,
	ErrCodeResourceExhausted:  true,
	ErrCodeOverloaded:         true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
