package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeUnreachable, "down", http.StatusBadGateway)
	if !err.Retryable {
		t.Error("FETCH_UNREACHABLE should be retryable")
	}
	err = New(ErrCodeCorruptMedia, "bad", http.StatusUnprocessableEntity)
	if err.Retryable {
		t.Error("CORRUPT_MEDIA should not be retryable")
	}
}

func TestAppError_NotFound_Details(t *testing.T) {
	err := NotFound("job", "123")
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected 404, got %d", err.HTTPStatus)
	}
	if err.Details["resource"] != "job" || err.Details["id"] != "123" {
		t.Errorf("unexpected details %v", err.Details)
	}
	if _, ok := NotFound("job", "").Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
}

func TestAppError_WithCause_Chain(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NotFound("job", "1").WithCause(cause)
	if !strings.Contains(err.Error(), "root cause") {
		t.Errorf("Error() should contain cause, got %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestAppError_WithDetails_Merge(t *testing.T) {
	err := TooLarge(10).WithDetails(map[string]any{"stage": "fetching"})
	if err.Details["limit_bytes"] != int64(10) {
		t.Errorf("expected original details preserved, got %v", err.Details)
	}
	if err.Details["stage"] != "fetching" {
		t.Error("expected stage to be merged")
	}
	err.WithDetail("stage", "normalizing")
	if err.Details["stage"] != "normalizing" {
		t.Error("expected WithDetail to overwrite")
	}
}

func TestPipelineConstructors_Table(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		kind      Kind
		status    int
		retryable bool
	}{
		{"Unreachable", Unreachable("u", nil), ErrCodeUnreachable, KindFetch, http.StatusBadGateway, true},
		{"FetchForbidden", FetchForbidden("u", "blocked"), ErrCodeFetchForbidden, KindFetch, http.StatusBadGateway, false},
		{"TooLarge", TooLarge(5), ErrCodeTooLarge, KindFetch, http.StatusRequestEntityTooLarge, false},
		{"FetchTimeout", FetchTimeout("u", nil), ErrCodeFetchTimeout, KindFetch, http.StatusGatewayTimeout, true},
		{"UnsupportedSource", UnsupportedSource("ftp://x", "scheme"), ErrCodeUnsupportedSource, KindFetch, http.StatusBadRequest, false},
		{"UnsupportedCodec", UnsupportedCodec("foo"), ErrCodeUnsupportedCodec, KindNormalize, http.StatusUnsupportedMediaType, false},
		{"CorruptMedia", CorruptMedia("moov"), ErrCodeCorruptMedia, KindNormalize, http.StatusUnprocessableEntity, false},
		{"EmptyAudio", EmptyAudio(), ErrCodeEmptyAudio, KindNormalize, http.StatusUnprocessableEntity, false},
		{"InferenceFailure", InferenceFailure(nil), ErrCodeInferenceFailure, KindInference, http.StatusInternalServerError, false},
		{"ResourceExhausted", ResourceExhausted(nil), ErrCodeResourceExhausted, KindInference, http.StatusServiceUnavailable, true},
		{"StageTimeout", StageTimeout("normalizing", time.Minute), ErrCodeStageTimeout, KindStage, http.StatusGatewayTimeout, false},
		{"Overloaded", Overloaded(10, 10, 5*time.Second), ErrCodeOverloaded, KindAdmission, http.StatusServiceUnavailable, true},
		{"Cancelled", Cancelled("fetching"), ErrCodeCancelled, KindCancel, http.StatusConflict, false},
		{"Validation", Validation("bad"), ErrCodeInvalidInput, KindRequest, http.StatusBadRequest, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if KindOf(tc.err.Code) != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, KindOf(tc.err.Code))
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, tc.err.HTTPStatus)
			}
			if tc.err.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, tc.err.Retryable)
			}
			if tc.err.Retryable != IsRetryableCode(tc.code) {
				t.Errorf("constructor and code table disagree on retryable for %s", tc.code)
			}
		})
	}
}

func TestOverloaded_RetryAfter(t *testing.T) {
	err := Overloaded(3, 3, 7*time.Second)
	if got := err.RetryAfter(); got != 7*time.Second {
		t.Errorf("expected 7s, got %v", got)
	}
	if NotFound("job", "").RetryAfter() != 0 {
		t.Error("expected no retry-after on non-admission errors")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Error("nil error should have empty code")
	}
	if CodeOf(fmt.Errorf("wrap: %w", EmptyAudio())) != ErrCodeEmptyAudio {
		t.Error("expected code through wrapping")
	}
	if CodeOf(fmt.Errorf("plain")) != ErrCodeInternal {
		t.Error("plain errors map to INTERNAL_ERROR")
	}
	if !HasCode(fmt.Errorf("x: %w", Cancelled("")), ErrCodeCancelled) {
		t.Error("HasCode should see wrapped codes")
	}
}

func TestAppError_ToResponse(t *testing.T) {
	resp := StageTimeout("transcribing", time.Second).ToResponse()
	if resp.Error.Code != ErrCodeStageTimeout {
		t.Errorf("expected STAGE_TIMEOUT in response, got %s", resp.Error.Code)
	}
	if resp.Error.Details["stage"] != "transcribing" {
		t.Error("expected stage in response details")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
	orig := NotFound("job", "1")
	if Wrap(fmt.Errorf("outer: %w", orig)) != orig {
		t.Error("Wrap should return the wrapped AppError")
	}
	plain := fmt.Errorf("something broke")
	got := Wrap(plain)
	if got.Code != ErrCodeInternal || got.Cause != plain {
		t.Errorf("expected INTERNAL_ERROR wrapping plain error, got %+v", got)
	}
}
