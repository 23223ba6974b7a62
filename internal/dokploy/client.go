package dokploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Error is returned when a platform call fails permanently, after the retry
// budget is exhausted or when retries are disabled.
type Error struct {
	Op       string // "POST /application.create"
	Status   int    // last HTTP status, 0 for transport failures
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed after %d attempt(s): status %d: %v", e.Op, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CallOptions controls retry behaviour for a single call. The zero value
// means "use the client defaults".
type CallOptions struct {
	NoRetry     bool
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Timeout     time.Duration
}

// Defaults applied when a CallOptions field is zero.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 3 * time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 60 * time.Second
	DefaultTimeout     = 40 * time.Second
)

func (o CallOptions) withDefaults() CallOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.Multiplier <= 0 {
		o.Multiplier = DefaultMultiplier
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.NoRetry {
		o.MaxAttempts = 1
	}
	return o
}

// backoffDelay computes the sleep before retry attempt+1:
// min(cap, base * multiplier^(attempt-1)), attempt starting at 1.
func backoffDelay(attempt int, base time.Duration, multiplier float64, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(multiplier, float64(attempt-1)))
	if d > cap {
		return cap
	}
	return d
}

// Client issues authenticated calls against the Dokploy HTTP API. It retries
// transient failures with exponential backoff and never touches the ledger;
// persisting results is the caller's job.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
	defaults   CallOptions
}

func NewClient(baseURL, apiKey string, defaults CallOptions, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "dokploy").Logger(),
		defaults:   defaults.withDefaults(),
	}
}

// Call performs one API operation, retrying on network errors and non-2xx
// statuses. A nil payload sends an empty JSON object on POST. The backoff
// sleep blocks the calling goroutine but honours ctx cancellation.
func (c *Client) Call(ctx context.Context, method, path string, payload any, opts CallOptions) (Response, error) {
	opts = c.mergeOptions(opts)
	op := method + " " + path

	var body []byte
	if method != http.MethodGet {
		if payload == nil {
			payload = map[string]any{}
		}
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return AbsentResponse(), &Error{Op: op, Attempts: 0, Err: fmt.Errorf("marshal payload: %w", err)}
		}
	}

	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		resp, status, err := c.do(ctx, method, path, body, opts.Timeout)
		if err == nil {
			callsTotal.WithLabelValues(path, "success").Inc()
			return resp, nil
		}
		lastErr = err
		lastStatus = status

		c.logger.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", opts.MaxAttempts).
			Int("status", status).
			Err(err).
			Msg("platform call failed")

		if attempt == opts.MaxAttempts {
			break
		}
		retriesTotal.WithLabelValues(path).Inc()
		if err := sleep(ctx, backoffDelay(attempt, opts.BaseDelay, opts.Multiplier, opts.MaxDelay)); err != nil {
			lastErr = err
			break
		}
	}

	callsTotal.WithLabelValues(path, "failure").Inc()
	return AbsentResponse(), &Error{Op: op, Status: lastStatus, Attempts: opts.MaxAttempts, Err: lastErr}
}

func (c *Client) mergeOptions(opts CallOptions) CallOptions {
	merged := c.defaults
	if opts.NoRetry {
		merged.NoRetry = true
		merged.MaxAttempts = 1
	}
	if opts.MaxAttempts > 0 {
		merged.MaxAttempts = opts.MaxAttempts
	}
	if opts.BaseDelay > 0 {
		merged.BaseDelay = opts.BaseDelay
	}
	if opts.Multiplier > 0 {
		merged.Multiplier = opts.Multiplier
	}
	if opts.MaxDelay > 0 {
		merged.MaxDelay = opts.MaxDelay
	}
	if opts.Timeout > 0 {
		merged.Timeout = opts.Timeout
	}
	return merged
}

// do performs a single attempt. It returns a non-nil error for network
// failures and for HTTP statuses outside 2xx.
func (c *Client) do(ctx context.Context, method, path string, body []byte, timeout time.Duration) (Response, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return AbsentResponse(), 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AbsentResponse(), 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return AbsentResponse(), resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AbsentResponse(), resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	return parseBody(respBody), resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
