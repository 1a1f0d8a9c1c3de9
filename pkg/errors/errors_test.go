package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state not ready", retryable: true, detailsOK: true},
		{code: CodeUnrecoverable, status: http.StatusUnprocessableEntity, publicMsg: "unrecoverable state", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}

	formatted := Newf(CodeUnrecoverable, "pack %s has %d collectibles", "p1", 17)
	if formatted.Message() != "pack p1 has 17 collectibles" {
		t.Fatalf("unexpected formatted message %q", formatted.Message())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "untyped", err: stdErrors.New("timeout"), want: true},
		{name: "unrecoverable", err: New(CodeUnrecoverable, "too many"), want: false},
		{name: "not found", err: New(CodeNotFound, "pack"), want: false},
		{name: "dependency", err: New(CodeDependency, "algod"), want: true},
		{name: "wrapped unrecoverable", err: fmt.Errorf("mint: %w", New(CodeUnrecoverable, "cap")), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeNotFound, "no pack")
	if got := As(err); got == nil || got.Code() != CodeNotFound {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestHasCodeSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("enqueue: %w", New(CodeValidation, "bad pack id"))
	if !HasCode(err, CodeValidation) {
		t.Fatalf("expected validation code on %v", err)
	}
	if HasCode(err, CodeNotFound) || HasCode(stdErrors.New("plain"), CodeValidation) {
		t.Fatalf("HasCode matched the wrong code")
	}
}

func TestWithDetailsLeavesOriginalUntouched(t *testing.T) {
	base := New(CodeDependency, "dependencies unavailable")
	detailed := base.WithDetails(map[string]string{"redis": "down"})
	if base.Details() != nil {
		t.Fatalf("base error gained details %v", base.Details())
	}
	if detailed.Details() == nil || detailed.Code() != CodeDependency {
		t.Fatalf("unexpected detailed error %+v", detailed)
	}
}
