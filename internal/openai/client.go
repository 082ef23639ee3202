// Package openai is a small chat completions client used for the property
// copy, the property summary and report parsing.
package openai

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

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	log "propertypackaging/internal/logging"
	"propertypackaging/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4"

	serviceName = "openai"
	maxWait     = 60 * time.Second
)

var (
	ErrNotConfigured      = errors.New("openai: api key not configured")
	ErrRateLimited        = errors.New("openai: rate limit exceeded")
	ErrInvalidContentType = errors.New("Invalid content type")
	ErrEmptyResponse      = errors.New("No response from ChatGPT")
)

// APIError is a non-2xx answer other than an exhausted 429.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("OpenAI API error: %d - %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("OpenAI API error: %d", e.StatusCode)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// NewClient returns a client for the chat completions API. baseURL may be the
// API root or the full /chat/completions URL.
func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/chat/completions"),
		model:      model,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 3),
		maxRetries: 3,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.MaxInterval = maxWait
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// retryAfter prefers the server's Retry-After hint over the wrapped policy.
type retryAfter struct {
	backoff.BackOff
	hint time.Duration
	set  bool
}

func (r *retryAfter) NextBackOff() time.Duration {
	next := r.BackOff.NextBackOff()
	if r.set {
		r.set = false
		return r.hint
	}
	return next
}

func parseRetryAfter(v string) (time.Duration, bool) {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > maxWait {
		d = maxWait
	}
	return d, true
}

// Complete sends one chat request and returns the first choice's content.
// A 429 is retried up to maxRetries times; once exhausted ErrRateLimited is
// returned.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if req.Model == "" {
		req.Model = c.model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	policy := &retryAfter{BackOff: c.newBackOff()}
	var content string
	attempt := 0
	op := func() error {
		attempt++
		text, wait, err := c.do(ctx, body)
		if errors.Is(err, ErrRateLimited) {
			if d, ok := parseRetryAfter(wait); ok {
				policy.hint, policy.set = d, true
			}
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		content = text
		return nil
	}
	notify := func(err error, d time.Duration) {
		log.WithFields(log.Fields{
			"event":   "openai_rate_limited",
			"attempt": attempt,
			"wait":    d.String(),
		}).Warn("OpenAI rate limited, backing off")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return "", err
	}
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// do performs a single attempt. For a 429 it returns the Retry-After header.
func (c *Client) do(ctx context.Context, body []byte) (content, wait string, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", "", err
	}
	start := time.Now()
	defer func() { metrics.ObserveUpstream(serviceName, start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to make openai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read openai response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", resp.Header.Get("Retry-After"), ErrRateLimited
	}

	var out chatResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		if decodeErr == nil && out.Error != nil {
			apiErr.Message = out.Error.Message
		}
		log.WithFields(log.Fields{
			"event":  "openai_error",
			"status": resp.StatusCode,
		}).Error(apiErr.Error())
		return "", "", apiErr
	}
	if decodeErr != nil {
		return "", "", fmt.Errorf("failed to decode openai response: %w", decodeErr)
	}
	if len(out.Choices) == 0 {
		return "", "", nil
	}
	return out.Choices[0].Message.Content, "", nil
}
