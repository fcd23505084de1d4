package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// --- Fetch ---

// Unreachable creates an error for a source that could not be reached.
func Unreachable(source string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeUnreachable, Message: "The media source could not be reached.",
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"source": source}, Cause: cause,
	}
}

// FetchForbidden creates an error for a source host that refused or is blocked.
func FetchForbidden(source, reason string) *AppError {
	return &AppError{
		Code: ErrCodeFetchForbidden, Message: fmt.Sprintf("Access to the media source was denied: %s", reason),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"source": source},
	}
}

// TooLarge creates an error for content above the byte cap.
func TooLarge(limit int64) *AppError {
	return &AppError{
		Code: ErrCodeTooLarge, Message: fmt.Sprintf("The media exceeds the maximum size of %d bytes.", limit),
		HTTPStatus: http.StatusRequestEntityTooLarge,
		Details:    map[string]any{"limit_bytes": limit},
	}
}

// FetchTimeout creates an error for a fetch that ran past its deadline.
func FetchTimeout(source string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeFetchTimeout, Message: "Downloading the media source timed out.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"source": source}, Cause: cause,
	}
}

// UnsupportedSource creates an error for a malformed reference or unsupported host.
func UnsupportedSource(source, reason string) *AppError {
	return &AppError{
		Code: ErrCodeUnsupportedSource, Message: fmt.Sprintf("Unsupported source: %s", reason),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"source": source},
	}
}

// --- Normalize ---

// UnsupportedCodec creates an error for media the transcoder cannot decode.
func UnsupportedCodec(detail string) *AppError {
	return &AppError{
		Code: ErrCodeUnsupportedCodec, Message: fmt.Sprintf("The media codec is not supported: %s", detail),
		HTTPStatus: http.StatusUnsupportedMediaType,
	}
}

// CorruptMedia creates an error for an unparseable container or stream.
func CorruptMedia(detail string) *AppError {
	return &AppError{
		Code: ErrCodeCorruptMedia, Message: fmt.Sprintf("The media could not be parsed: %s", detail),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// EmptyAudio creates an error for media with no audio track or zero duration.
func EmptyAudio() *AppError {
	return &AppError{
		Code: ErrCodeEmptyAudio, Message: "The media contains no audio.",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// --- Inference ---

// InferenceFailure creates an error for an engine-internal failure.
func InferenceFailure(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInferenceFailure, Message: "The transcription engine failed.",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}

// ResourceExhausted creates an error for an engine that ran out of memory or capacity.
func ResourceExhausted(cause error) *AppError {
	return &AppError{
		Code: ErrCodeResourceExhausted, Message: "The transcription engine ran out of resources.",
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true, Cause: cause,
	}
}

// --- Pipeline control ---

// StageTimeout creates an error for a stage that exceeded its maximum duration.
func StageTimeout(stage string, limit time.Duration) *AppError {
	return &AppError{
		Code: ErrCodeStageTimeout, Message: fmt.Sprintf("The %s stage exceeded %s.", stage, limit),
		HTTPStatus: http.StatusGatewayTimeout,
		Details:    map[string]any{"stage": stage, "limit": limit.String()},
	}
}

// Overloaded creates an admission rejection for a full queue.
func Overloaded(depth, limit int, retryAfter time.Duration) *AppError {
	return &AppError{
		Code: ErrCodeOverloaded, Message: "The service is at capacity. Please retry later.",
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{
			"queue_depth":         depth,
			"max_queue_depth":     limit,
			"retry_after_seconds": int(retryAfter.Seconds()),
		},
	}
}

// Cancelled creates an error for a job stopped by request.
func Cancelled(stage string) *AppError {
	e := &AppError{
		Code: ErrCodeCancelled, Message: "The job was cancelled.",
		HTTPStatus: http.StatusConflict,
	}
	if stage != "" {
		e.Details = map[string]any{"stage": stage}
	}
	return e
}

// CodeOf returns the code of the first AppError in err's chain, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// Wrap returns err as an AppError, falling back to Internal for foreign errors.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}
