// Package client submits completed surveys to the onboarding API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/types"
)

// Defaults match the web client's submission policy.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = time.Second
	maxBackoff         = 30 * time.Second
)

// ResponsesPath is the endpoint completed surveys are posted to.
const ResponsesPath = "/v1/survey/responses"

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration // per attempt
	MaxRetries  int
	BaseBackoff time.Duration
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// DefaultOptions returns the default policy against baseURL.
func DefaultOptions(baseURL, token string) *Options {
	return &Options{
		BaseURL:     baseURL,
		Token:       token,
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// Client implements survey.Submitter against the HTTP API.
type Client struct {
	opts  Options
	http  *http.Client
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

var _ survey.Submitter = (*Client)(nil)

// New validates opts and returns a Client.
func New(opts *Options) (*Client, error) {
	if opts == nil || opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	o := *opts
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be non-negative")
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{opts: o, http: hc, log: log.Named("client"), sleep: sleepCtx}, nil
}

// Submit posts the submission and returns the server's receipt. Network failures,
// 5xx and 429 responses are retried with exponential backoff; other 4xx are final.
func (c *Client) Submit(ctx context.Context, sub types.Submission) (types.SubmitReceipt, error) {
	body, err := json.Marshal(types.NewSubmissionPayload(sub))
	if err != nil {
		return types.SubmitReceipt{}, fmt.Errorf("failed to encode submission: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt, lastErr)
			c.log.Warn("retrying survey submission",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr))
			if err := c.sleep(ctx, wait); err != nil {
				return types.SubmitReceipt{}, classifyTransport(err)
			}
		}

		receipt, err := c.post(ctx, body)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return types.SubmitReceipt{}, lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (types.SubmitReceipt, error) {
	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.opts.BaseURL+ResponsesPath, bytes.NewReader(body))
	if err != nil {
		return types.SubmitReceipt{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return types.SubmitReceipt{}, classifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.SubmitReceipt{}, classifyTransport(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var receipt types.SubmitReceipt
		if err := json.Unmarshal(data, &receipt); err != nil {
			return types.SubmitReceipt{}, fmt.Errorf("failed to decode receipt: %w", err)
		}
		return receipt, nil
	}
	return types.SubmitReceipt{}, classifyStatus(resp, data)
}

// rateLimited carries a server-provided Retry-After hint alongside the HTTP error.
type rateLimited struct {
	*survey.HTTPError
	retryAfter time.Duration
}

func (e *rateLimited) Unwrap() error { return e.HTTPError }

func classifyStatus(resp *http.Response, body []byte) error {
	msg := errorMessage(body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &survey.AuthError{Message: msg}
	case resp.StatusCode == http.StatusBadRequest:
		if msg == "" {
			return &survey.HTTPError{Status: resp.StatusCode}
		}
		return &survey.ValidationError{Step: errorStep(body), Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		e := &rateLimited{HTTPError: &survey.HTTPError{Status: resp.StatusCode, Message: msg}}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			e.retryAfter = time.Duration(secs) * time.Second
		}
		return e
	case resp.StatusCode >= 500:
		return &survey.ServerError{Status: resp.StatusCode, Message: msg}
	default:
		return &survey.HTTPError{Status: resp.StatusCode, Message: msg}
	}
}

// errorMessage extracts {"error": "..."} or {"message": "..."} from a response body.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// errorStep reads the failing step the server reports with a 400, or 0.
func errorStep(body []byte) int {
	var payload struct {
		Step int `json:"step"`
	}
	_ = json.Unmarshal(body, &payload)
	return payload.Step
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &survey.TimeoutError{Operation: "submit", Cause: err}
	}
	return fmt.Errorf("request failed: %w", err)
}

func retryable(err error) bool {
	var (
		authErr *survey.AuthError
		valErr  *survey.ValidationError
		httpErr *survey.HTTPError
		rl      *rateLimited
	)
	switch {
	case errors.As(err, &rl):
		return true
	case errors.As(err, &authErr), errors.As(err, &valErr), errors.As(err, &httpErr):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// backoff is BaseBackoff * 2^(attempt-1), or the server's Retry-After when larger.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	d := min(c.opts.BaseBackoff<<(attempt-1), maxBackoff)
	var rl *rateLimited
	if errors.As(lastErr, &rl) && rl.retryAfter > d {
		d = min(rl.retryAfter, maxBackoff)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
