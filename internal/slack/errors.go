package slack

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind tags every failure a dispatcher or timer operation can return.
// Transient kinds (RateLimited, TransportFailure) are retried internally and
// only surface wrapped in a KindRetryExhausted error.
type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missing_credential"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindNotFound          ErrorKind = "not_found"
	KindPermissionDenied  ErrorKind = "permission_denied"
	KindRateLimited       ErrorKind = "rate_limited"
	KindTransportFailure  ErrorKind = "transport_failure"
	KindRetryExhausted    ErrorKind = "retry_exhausted"
	KindUploadPhase       ErrorKind = "upload_phase_failure"
)

// APIError is the unified failure type for workspace operations. Code carries
// the API-level error string when the failure came from the response envelope;
// Hint carries a remediation suggestion for the caller.
type APIError struct {
	Kind       ErrorKind
	Code       string
	Status     int
	Message    string
	Hint       string
	Phase      string // set for KindUploadPhase: "request", "transfer" or "complete"
	RetryAfter *time.Duration

	cause error
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request failed"
	}
	if e.Code != "" {
		return fmt.Sprintf("slack: %s (%s): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("slack: %s: %s", e.Kind, msg)
}

func (e *APIError) Unwrap() error { return e.cause }

// Retryable reports whether the dispatcher should attempt the call again.
func (e *APIError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransportFailure
}

// AsAPIError unwraps err to an *APIError if possible.
func AsAPIError(err error) (*APIError, bool) {
	var e *APIError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the error kind, or "" for non-API errors.
func KindOf(err error) ErrorKind {
	if e, ok := AsAPIError(err); ok {
		return e.Kind
	}
	return ""
}

// suggestions maps API error codes to remediation hints shown to the caller.
var suggestions = map[string]string{
	"missing_scope":          "Add the required OAuth scope in the app configuration.",
	"not_in_channel":         "The bot is not a member of this channel. Invite it first.",
	"channel_not_found":      "Check the channel ID or name; it may be deleted or inaccessible.",
	"user_not_found":         "Check the user ID; the user may not exist in this workspace.",
	"invalid_auth":           "The token is invalid or expired. Generate a new one.",
	"account_inactive":       "The workspace is deactivated or suspended.",
	"token_revoked":          "The token was revoked. Generate a new one in the app settings.",
	"ratelimited":            "Request quota exceeded. Retrying with backoff.",
	"access_denied":          "No permission for this operation. Check scopes and channel membership.",
	"cannot_dm_bot":          "Bots cannot receive direct messages. Use a regular user ID.",
	"user_disabled":          "The target user account is deactivated.",
	"not_allowed_token_type": "search.messages requires an elevated user token, not a bot token.",
	"invalid_arguments":      "Check the request parameters; a required field may be missing or malformed.",
	"file_too_large":         "The file exceeds the workspace size limit.",
	"upload_failed":          "The file upload failed. Check connectivity and file permissions.",
}

func suggestionFor(code string, needed string) string {
	if s, ok := suggestions[code]; ok {
		if code == "missing_scope" && needed != "" {
			return fmt.Sprintf("Add the required OAuth scope in the app configuration: %s", needed)
		}
		return s
	}
	return fmt.Sprintf("No specific suggestion for %q; consult the API documentation.", code)
}

// notFoundCodes and permissionCodes partition the permanent API error codes.
var (
	notFoundCodes = map[string]bool{
		"channel_not_found": true,
		"user_not_found":    true,
		"message_not_found": true,
		"file_not_found":    true,
	}
	permissionCodes = map[string]bool{
		"missing_scope":          true,
		"not_in_channel":         true,
		"access_denied":          true,
		"invalid_auth":           true,
		"account_inactive":       true,
		"token_revoked":          true,
		"cannot_dm_bot":          true,
		"user_disabled":          true,
		"not_allowed_token_type": true,
	}
)

// classifyAPICode maps an API-level error code from a response envelope to a
// typed error. needed is the value of the envelope's "needed" field, if any.
func classifyAPICode(code string, status int, needed string, retryAfter *time.Duration) *APIError {
	kind := KindInvalidArgument
	switch {
	case code == "ratelimited":
		kind = KindRateLimited
	case notFoundCodes[code]:
		kind = KindNotFound
	case permissionCodes[code]:
		kind = KindPermissionDenied
	}
	return &APIError{
		Kind:       kind,
		Code:       code,
		Status:     status,
		Message:    "API error " + code,
		Hint:       suggestionFor(code, needed),
		RetryAfter: retryAfter,
	}
}

// classifyHTTPStatus maps a non-2xx transport status (with no parseable API
// envelope) to a typed error. 429 is rate limiting; 408 and 5xx are transient.
func classifyHTTPStatus(status int, body string, retryAfter *time.Duration) *APIError {
	msg := strings.TrimSpace(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &APIError{
			Kind:       KindRateLimited,
			Status:     status,
			Message:    fmt.Sprintf("HTTP %d: %s", status, msg),
			Hint:       suggestions["ratelimited"],
			RetryAfter: retryAfter,
		}
	case status == http.StatusRequestTimeout || status >= 500:
		return &APIError{
			Kind:    KindTransportFailure,
			Status:  status,
			Message: fmt.Sprintf("HTTP %d: %s", status, msg),
			Hint:    "The API is unavailable; retrying with backoff.",
		}
	case status == http.StatusNotFound:
		return &APIError{
			Kind:    KindNotFound,
			Status:  status,
			Message: fmt.Sprintf("HTTP %d: %s", status, msg),
			Hint:    "Check the endpoint path.",
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &APIError{
			Kind:    KindPermissionDenied,
			Status:  status,
			Message: fmt.Sprintf("HTTP %d: %s", status, msg),
			Hint:    "Check the credential and its scopes.",
		}
	default:
		return &APIError{
			Kind:    KindInvalidArgument,
			Status:  status,
			Message: fmt.Sprintf("HTTP %d: %s", status, msg),
			Hint:    "Check the request parameters.",
		}
	}
}

func newTransportError(err error) *APIError {
	return &APIError{
		Kind:    KindTransportFailure,
		Message: err.Error(),
		Hint:    "Check network connectivity and API status.",
		cause:   err,
	}
}

func newMissingCredential(capability string) *APIError {
	return &APIError{
		Kind:    KindMissingCredential,
		Message: fmt.Sprintf("no credential grants capability %q", capability),
		Hint:    "Set SLACK_USER_TOKEN to enable search and large-file upload.",
	}
}

func newRetryExhausted(attempts int, last *APIError) *APIError {
	return &APIError{
		Kind:    KindRetryExhausted,
		Code:    last.Code,
		Status:  last.Status,
		Message: fmt.Sprintf("gave up after %d attempts: %s", attempts, last.Message),
		Hint:    last.Hint,
		cause:   last,
	}
}

func newUploadPhaseError(phase string, cause error) *APIError {
	return &APIError{
		Kind:    KindUploadPhase,
		Phase:   phase,
		Message: fmt.Sprintf("upload phase %s failed: %v", phase, cause),
		Hint:    "Check the file size and format, and network connectivity.",
		cause:   cause,
	}
}

// ParseRetryAfter parses a Retry-After header value.
// Supported forms:
// - integer seconds
// - HTTP-date (RFC 7231)
func ParseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
