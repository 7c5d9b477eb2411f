package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const userAgent = "slackpomo/1.0"

// RequestSpec describes one API call. Transient, constructed per call.
type RequestSpec struct {
	Endpoint   string
	Method     string
	Params     url.Values // query parameters for GET
	Body       any        // JSON-encoded body for POST
	Capability Capability
}

// envelope is the common wrapper every API response carries.
type envelope struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Needed string `json:"needed"`
}

// SleepFunc suspends for d or until the context is done. Injectable in tests.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DispatcherOptions configures a Dispatcher. Zero values take the documented
// defaults.
type DispatcherOptions struct {
	BaseURL string
	Timeout time.Duration
	Backoff BackoffPolicy
	Logger  *slog.Logger

	// Transport overrides the HTTP transport; used by tests.
	Transport http.RoundTripper
	// Sleep overrides retry sleeping; used by tests.
	Sleep SleepFunc
}

// Dispatcher performs authenticated API calls with timeout, retry and
// backoff. It holds no per-call state; the shared HTTP client is built
// lazily exactly once, so concurrent first callers cannot race to create
// duplicate connection pools.
type Dispatcher struct {
	creds   *CredentialStore
	baseURL string
	timeout time.Duration
	backoff BackoffPolicy
	logger  *slog.Logger

	transport http.RoundTripper
	sleep     SleepFunc
	now       func() time.Time

	clientOnce sync.Once
	client     *http.Client
}

func NewDispatcher(creds *CredentialStore, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		creds:     creds,
		baseURL:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		timeout:   opts.Timeout,
		backoff:   opts.Backoff.withDefaults(),
		logger:    opts.Logger,
		transport: opts.Transport,
		sleep:     opts.Sleep,
		now:       time.Now,
	}
	if d.baseURL == "" {
		d.baseURL = "https://slack.com/api"
	}
	if d.timeout <= 0 {
		d.timeout = 30 * time.Second
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.sleep == nil {
		d.sleep = defaultSleep
	}
	return d
}

// httpClient returns the shared client, constructing it on first use.
// Per-attempt deadlines come from the request context, not the client.
func (d *Dispatcher) httpClient() *http.Client {
	d.clientOnce.Do(func() {
		d.client = &http.Client{Transport: d.transport, Timeout: 0}
	})
	return d.client
}

// HasElevated reports whether elevated-capability calls can succeed.
func (d *Dispatcher) HasElevated() bool { return d.creds.HasElevated() }

// Execute resolves the credential, performs the call, and retries transient
// failures with exponential backoff. A server-provided Retry-After takes
// precedence over the computed delay. It returns the raw response body on
// success; failures are always *APIError.
func (d *Dispatcher) Execute(ctx context.Context, spec RequestSpec) (json.RawMessage, error) {
	cred, err := d.creds.Select(spec.Capability)
	if err != nil {
		return nil, err
	}

	var last *APIError
	maxAttempts := d.backoff.MaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, apiErr := d.attempt(ctx, spec, cred)
		if apiErr == nil {
			if attempt > 1 {
				d.logger.Debug("request succeeded after retry", "endpoint", spec.Endpoint, "attempt", attempt)
			}
			return raw, nil
		}
		if !apiErr.Retryable() {
			return nil, apiErr
		}
		last = apiErr
		if attempt == maxAttempts {
			break
		}

		delay := DelayForAttempt(attempt, d.backoff, fmt.Sprintf("%s:%d", spec.Endpoint, attempt))
		if apiErr.RetryAfter != nil {
			delay = *apiErr.RetryAfter
		}
		d.logger.Warn("transient failure, retrying",
			"endpoint", spec.Endpoint, "kind", string(apiErr.Kind),
			"attempt", attempt, "max_attempts", maxAttempts, "delay", delay.String())
		if err := d.sleep(ctx, delay); err != nil {
			return nil, newTransportError(err)
		}
	}
	return nil, newRetryExhausted(maxAttempts, last)
}

// attempt performs a single HTTP exchange and classifies the outcome.
func (d *Dispatcher) attempt(ctx context.Context, spec RequestSpec, cred Credential) (json.RawMessage, *APIError) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := d.buildRequest(ctx, spec, cred)
	if err != nil {
		return nil, &APIError{Kind: KindInvalidArgument, Message: err.Error(), Hint: "Check the request parameters."}
	}

	resp, err := d.httpClient().Do(req)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(err)
	}

	retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"), d.now())

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, classifyHTTPStatus(resp.StatusCode, string(body), retryAfter)
	}
	if !env.OK {
		return nil, classifyAPICode(env.Error, resp.StatusCode, env.Needed, retryAfter)
	}
	return json.RawMessage(body), nil
}

func (d *Dispatcher) buildRequest(ctx context.Context, spec RequestSpec, cred Credential) (*http.Request, error) {
	endpoint := d.baseURL + "/" + strings.TrimLeft(spec.Endpoint, "/")

	var req *http.Request
	var err error
	switch spec.Method {
	case http.MethodPost:
		var buf bytes.Buffer
		if spec.Body != nil {
			if err := json.NewEncoder(&buf).Encode(spec.Body); err != nil {
				return nil, fmt.Errorf("encode %s body: %w", spec.Endpoint, err)
			}
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	case http.MethodGet, "":
		if len(spec.Params) > 0 {
			endpoint += "?" + spec.Params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported method %q", spec.Method)
	}

	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// RawPut streams bytes to a one-time upload URL outside the normal API
// envelope. No retries: the caller owns phase-level failure handling.
func (d *Dispatcher) RawPut(ctx context.Context, target string, body io.Reader, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)
	if size >= 0 {
		req.ContentLength = size
	}

	resp, err := d.httpClient().Do(req)
	if err != nil {
		return newTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload transfer returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
