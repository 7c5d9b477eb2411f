package slack

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClassifyAPICode(t *testing.T) {
	cases := []struct {
		code     string
		wantKind ErrorKind
		wantHint string // substring
	}{
		{"channel_not_found", KindNotFound, "deleted or inaccessible"},
		{"user_not_found", KindNotFound, "may not exist"},
		{"missing_scope", KindPermissionDenied, "OAuth scope"},
		{"not_in_channel", KindPermissionDenied, "Invite it"},
		{"invalid_auth", KindPermissionDenied, "invalid or expired"},
		{"token_revoked", KindPermissionDenied, "revoked"},
		{"not_allowed_token_type", KindPermissionDenied, "user token"},
		{"cannot_dm_bot", KindPermissionDenied, "cannot receive"},
		{"ratelimited", KindRateLimited, "quota"},
		{"invalid_arguments", KindInvalidArgument, "required field"},
		{"some_novel_code", KindInvalidArgument, "No specific suggestion"},
	}
	for _, tc := range cases {
		err := classifyAPICode(tc.code, 200, "", nil)
		if err.Kind != tc.wantKind {
			t.Fatalf("%s: got kind %s, want %s", tc.code, err.Kind, tc.wantKind)
		}
		if err.Code != tc.code {
			t.Fatalf("%s: code not preserved: %q", tc.code, err.Code)
		}
		if !strings.Contains(err.Hint, tc.wantHint) {
			t.Fatalf("%s: hint %q missing %q", tc.code, err.Hint, tc.wantHint)
		}
	}
}

func TestClassifyAPICodeMissingScopeNeeded(t *testing.T) {
	err := classifyAPICode("missing_scope", 200, "chat:write", nil)
	if !strings.Contains(err.Hint, "chat:write") {
		t.Fatalf("hint should name the needed scope: %q", err.Hint)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status    int
		wantKind  ErrorKind
		retryable bool
	}{
		{429, KindRateLimited, true},
		{408, KindTransportFailure, true},
		{500, KindTransportFailure, true},
		{503, KindTransportFailure, true},
		{404, KindNotFound, false},
		{401, KindPermissionDenied, false},
		{403, KindPermissionDenied, false},
		{400, KindInvalidArgument, false},
	}
	for _, tc := range cases {
		err := classifyHTTPStatus(tc.status, "boom", nil)
		if err.Kind != tc.wantKind {
			t.Fatalf("status %d: got kind %s, want %s", tc.status, err.Kind, tc.wantKind)
		}
		if err.Retryable() != tc.retryable {
			t.Fatalf("status %d: retryable=%v, want %v", tc.status, err.Retryable(), tc.retryable)
		}
	}
}

func TestRetryExhaustedWrapsLast(t *testing.T) {
	last := classifyHTTPStatus(503, "unavailable", nil)
	err := newRetryExhausted(3, last)
	if err.Kind != KindRetryExhausted {
		t.Fatalf("got kind %s", err.Kind)
	}
	if err.Retryable() {
		t.Fatal("retry exhaustion must not itself be retryable")
	}
	inner, ok := AsAPIError(err.Unwrap())
	if !ok || inner.Kind != KindTransportFailure {
		t.Fatalf("expected wrapped transport failure, got %v", err.Unwrap())
	}
}

func TestUploadPhaseError(t *testing.T) {
	err := newUploadPhaseError("transfer", classifyHTTPStatus(500, "", nil))
	if err.Kind != KindUploadPhase || err.Phase != "transfer" {
		t.Fatalf("got kind=%s phase=%s", err.Kind, err.Phase)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if d := ParseRetryAfter("30", now); d == nil || *d != 30*time.Second {
		t.Fatalf("integer seconds: got %v", d)
	}
	if d := ParseRetryAfter("Sun, 01 Jun 2025 12:00:10 GMT", now); d == nil || *d != 10*time.Second {
		t.Fatalf("HTTP date: got %v", d)
	}
	if d := ParseRetryAfter("Sun, 01 Jun 2025 11:00:00 GMT", now); d == nil || *d != 0 {
		t.Fatalf("past date should clamp to zero, got %v", d)
	}
	if d := ParseRetryAfter("", now); d != nil {
		t.Fatalf("empty header: got %v", d)
	}
	if d := ParseRetryAfter("soon", now); d != nil {
		t.Fatalf("garbage header: got %v", d)
	}
}

func TestKindOf(t *testing.T) {
	if k := KindOf(classifyAPICode("ratelimited", 200, "", nil)); k != KindRateLimited {
		t.Fatalf("got %s", k)
	}
	if k := KindOf(errors.New("plain")); k != "" {
		t.Fatalf("plain error should have no kind, got %s", k)
	}
}
