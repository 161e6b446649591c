// Package httpapi implements a Backend over a remote JSON inference service.
// Each generation is a POST to /v1/models/{model}/generate; an optional rate
// limiter bounds the request rate to the upstream service.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/manifold-ai/manifold/pkg/backend"
)

// Config configures the HTTP inference backend.
type Config struct {
	// BaseURL is the root of the inference service (e.g., "http://inference:8090").
	BaseURL string

	// Timeout is the HTTP client timeout for a single request.
	// The per-call deadline from the dispatcher still applies via context.
	// Default: 60s.
	Timeout time.Duration

	// RequestsPerSecond bounds the request rate to the upstream service.
	// Zero disables rate limiting.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size. Default: 1 when rate limiting is on.
	Burst int

	// Logger receives request-level debug logs. Nil discards them.
	Logger *slog.Logger
}

// Client is a Backend backed by a remote HTTP inference service.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates an HTTP inference backend.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("httpapi: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("httpapi: invalid base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Name returns "httpapi".
func (c *Client) Name() string { return "httpapi" }

// generatePayload is the wire request body.
type generatePayload struct {
	Prompt      string            `json:"prompt"`
	Module      string            `json:"module,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// generateReply is the wire response body.
type generateReply struct {
	Text            string  `json:"text"`
	Confidence      float64 `json:"confidence"`
	TokensGenerated int     `json:"tokens_generated"`
	Model           string  `json:"model"`
	RequestID       string  `json:"request_id"`
}

// Generate posts the prompt to the inference service and decodes the reply.
// Non-2xx statuses become *backend.HTTPError so the retry wrapper can
// distinguish transient failures.
func (c *Client) Generate(ctx context.Context, req backend.GenerateRequest) (*backend.GenerateResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(generatePayload{
		Prompt:      req.Prompt,
		Module:      req.Module,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("httpapi: encoding request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s/generate", c.baseURL, url.PathEscape(req.Model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpapi: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("httpapi: request to %s failed: %w", req.Model, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("inference request complete",
		"model", req.Model,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Bounded read: error bodies should be small.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, backend.NewHTTPError(resp.StatusCode, string(msg))
	}

	var reply generateReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("httpapi: decoding response for %s: %w", req.Model, err)
	}

	model := reply.Model
	if model == "" {
		model = req.Model
	}

	return &backend.GenerateResponse{
		Text:            reply.Text,
		Confidence:      reply.Confidence,
		TokensGenerated: reply.TokensGenerated,
		Model:           model,
		RequestID:       reply.RequestID,
	}, nil
}
