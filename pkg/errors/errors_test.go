package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name: "without underlying error",
			appErr: &AppError{
				Code:    CodeNotFound,
				Message: "booking not found",
			},
			expected: "NOT_FOUND: booking not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeInternal,
				Message: "storage failure",
				Err:     errors.New("connection refused"),
			},
			expected: "INTERNAL_ERROR: storage failure (caused by: connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	appErr := Internal("wrapped", cause)

	if unwrapped := errors.Unwrap(appErr); unwrapped != cause {
		t.Errorf("Unwrap() should return the original error")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"not found", NotFound("Driver"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("bad date", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("missing field"), CodeInvalidInput, http.StatusBadRequest},
		{"conflict", Conflict("date taken"), CodeConflict, http.StatusConflict},
		{"unauthorized", Unauthorized("no identity"), CodeUnauthorized, http.StatusUnauthorized},
		{"forbidden", Forbidden("not yours"), CodeForbidden, http.StatusForbidden},
		{"internal", Internal("boom", errors.New("x")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if tt.err.StatusCode() != tt.wantStatus {
				t.Errorf("status = %d, want %d", tt.err.StatusCode(), tt.wantStatus)
			}
		})
	}
}

func TestNotFoundWithID_Details(t *testing.T) {
	err := NotFoundWithID("Booking", "abc123")

	if err.Details["id"] != "abc123" {
		t.Errorf("expected id detail, got %v", err.Details)
	}
	if err.Details["resource"] != "Booking" {
		t.Errorf("expected resource detail, got %v", err.Details)
	}
}

func TestAsAppError_MasksUnknownErrors(t *testing.T) {
	err := AsAppError(errors.New("pq: secret dsn"))

	if err.Code != CodeInternal {
		t.Errorf("expected internal code, got %s", err.Code)
	}
	if err.Message == "pq: secret dsn" {
		t.Error("internal cause must not leak into the caller-facing message")
	}
}
