package nli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	maxErrorBodyBytes  = 512
)

// Observer receives per-request provider telemetry
type Observer interface {
	ObserveProviderRequest(outcome string, elapsed time.Duration)
	ObserveProviderRetry()
}

// Client scores statement pairs against a single NLI endpoint
type Client struct {
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	provider    string
	maxAttempts int
	backoff     func(attempt int) time.Duration
	limiter     *rate.Limiter
	observer    Observer
	logger      *zap.Logger
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithProvider sets the provider tag reported alongside scores
func WithProvider(name string) ClientOption {
	return func(c *Client) {
		c.provider = name
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMaxAttempts sets how many times one evaluation is attempted
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff overrides the delay between attempts
func WithBackoff(fn func(attempt int) time.Duration) ClientOption {
	return func(c *Client) {
		c.backoff = fn
	}
}

// WithRateLimit paces provider calls to rps requests per second. Zero disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithObserver attaches a telemetry sink
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// LinearBackoff waits attempt seconds after the given failed attempt
func LinearBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

// NewClient creates a new scoring client for endpoint
func NewClient(endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		endpoint:    endpoint,
		apiKey:      apiKey,
		provider:    DefaultProvider,
		maxAttempts: defaultMaxAttempts,
		backoff:     LinearBackoff,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Provider returns the provider tag
func (c *Client) Provider() string {
	return c.provider
}

// Score evaluates premise against hypothesis, retrying transient failures
// up to the attempt budget.
func (c *Client) Score(ctx context.Context, premise, hypothesis string) (Scores, error) {
	body, err := json.Marshal(ScoreRequest{
		Inputs: ScoreInputs{Premise: premise, Hypothesis: hypothesis},
	})
	if err != nil {
		return Scores{}, fmt.Errorf("marshal request: %w", err)
	}

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return Scores{}, ctx.Err()
				}
				if _, ok := ctx.Deadline(); ok {
					// the next token is due after the deadline
					return Scores{}, fmt.Errorf("wait for rate limiter: %w", context.DeadlineExceeded)
				}
				return Scores{}, fmt.Errorf("wait for rate limiter: %w", err)
			}
		}

		start := time.Now()
		scores, status, err := c.post(ctx, body)
		c.observe(err, time.Since(start))
		if err == nil {
			return scores, nil
		}
		if ctx.Err() != nil {
			return Scores{}, ctx.Err()
		}
		if !errors.Is(err, ErrTransient) {
			return Scores{}, err
		}

		lastErr, lastStatus = err, status
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Warn("nli request failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("delay", delay),
		)
		if c.observer != nil {
			c.observer.ObserveProviderRetry()
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Scores{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return Scores{}, &ProviderError{
		Attempts:   c.maxAttempts,
		StatusCode: lastStatus,
		Err:        lastErr,
	}
}

func (c *Client) post(ctx context.Context, body []byte) (Scores, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Scores{}, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Scores{}, 0, fmt.Errorf("%w: do request: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Scores{}, resp.StatusCode, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := respBody
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return Scores{}, resp.StatusCode, fmt.Errorf("%w: API error (status %d): %s", ErrTransient, resp.StatusCode, string(snippet))
	}

	scores, err := ParseScores(respBody)
	if err != nil {
		return Scores{}, resp.StatusCode, err
	}
	return scores, resp.StatusCode, nil
}

func (c *Client) observe(err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedResponse):
		outcome = "malformed"
	default:
		outcome = "error"
	}
	c.observer.ObserveProviderRequest(outcome, elapsed)
}
