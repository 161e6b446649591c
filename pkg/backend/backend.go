// Package backend abstracts the underlying model call. The engine treats a
// backend as an opaque, possibly slow, possibly failing text generator; it may
// be a local simulation, an HTTP inference service, or an in-process runtime.
package backend

import (
	"context"
	"fmt"
)

// Backend executes one generation request against one model.
// Implementations must honor context cancellation and deadlines.
type Backend interface {
	// Name returns the unique identifier for this backend (e.g., "simulated", "httpapi").
	Name() string

	// Generate produces text for the given prompt on the given model.
	// It blocks until the response is complete, the context is cancelled,
	// or the context deadline expires.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest contains all parameters for a single model call.
type GenerateRequest struct {
	// Model is the target model identifier.
	Model string

	// Prompt is the fully rendered prompt text.
	Prompt string

	// Module is the task-domain hint (code_generation, documents, database,
	// browser). Backends may use it to route or shape the response.
	Module string

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64

	// MaxTokens limits the response length. Zero means backend default.
	MaxTokens int

	// Metadata carries request tracking information (correlation IDs, etc).
	Metadata map[string]string
}

// GenerateResponse is the backend's answer to a single model call.
type GenerateResponse struct {
	// Text is the generated output.
	Text string

	// Confidence is the backend's self-reported confidence in [0,1].
	Confidence float64

	// TokensGenerated counts the generated output units.
	TokensGenerated int

	// Model is the model that actually served the request.
	Model string

	// RequestID identifies the request for tracing.
	RequestID string
}

// HTTPError represents an HTTP error with status code from a remote backend.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}
