// Package simulated provides a deterministic in-process backend used by the
// default configuration and by tests. Latency and confidence follow the same
// heuristics for each model family so concurrency behavior is reproducible
// without a real inference service.
package simulated

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/manifold-ai/manifold/pkg/backend"
)

const (
	// interfaceLatency is the simulated generation time for interface models.
	interfaceLatency = 500 * time.Millisecond

	// knowledgeLatency is the simulated generation time for knowledge models.
	knowledgeLatency = 300 * time.Millisecond
)

// Option configures the simulated backend.
type Option func(*Simulated)

// WithLatencyScale multiplies all simulated latencies. Tests pass a small
// fraction so suites stay fast; 1.0 reproduces realistic timing.
func WithLatencyScale(scale float64) Option {
	return func(s *Simulated) {
		s.scale = scale
	}
}

// Simulated is an in-process Backend with deterministic latency per model family.
type Simulated struct {
	scale float64
}

// New creates a simulated backend.
func New(opts ...Option) *Simulated {
	s := &Simulated{scale: 1.0}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "simulated".
func (s *Simulated) Name() string { return "simulated" }

// Generate produces a canned response after the model family's simulated
// latency. It honors context cancellation, returning ctx.Err() if the
// deadline expires before the simulated generation completes.
func (s *Simulated) Generate(ctx context.Context, req backend.GenerateRequest) (*backend.GenerateResponse, error) {
	latency := interfaceLatency
	if strings.Contains(req.Model, "knowledge") {
		latency = knowledgeLatency
	}
	latency = time.Duration(float64(latency) * s.scale)

	timer := time.NewTimer(latency)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	text, confidence, tokens := s.respond(req)

	return &backend.GenerateResponse{
		Text:            text,
		Confidence:      confidence,
		TokensGenerated: tokens,
		Model:           req.Model,
		RequestID:       uuid.NewString(),
	}, nil
}

// respond builds the canned response text and confidence for a request. The
// module hint shapes interface-model responses the way a routed inference
// service would.
func (s *Simulated) respond(req backend.GenerateRequest) (string, float64, int) {
	prompt := strings.ToLower(req.Prompt)

	if strings.Contains(req.Model, "knowledge") {
		text := fmt.Sprintf(
			"Background: the request touches established territory.\n"+
				"Best practices: validate inputs, prefer iterative solutions, handle edge cases explicitly.\n"+
				"Common pitfalls: off-by-one boundaries, unbounded recursion, ignoring failure paths.\n"+
				"(retrieved by %s)", req.Model)
		return text, 0.88, len(strings.Fields(text))
	}

	switch req.Module {
	case "documents":
		text := fmt.Sprintf("Document analysis by %s: extracted key sections and summarized findings for the request.", req.Model)
		return text, 0.9, len(strings.Fields(text))
	case "database":
		text := fmt.Sprintf("-- Query generated by %s\nSELECT id, name FROM records WHERE matches_request = 1;", req.Model)
		return text, 0.9, len(strings.Fields(text))
	case "browser":
		text := fmt.Sprintf("Browsing summary by %s: gathered and condensed the most relevant sources for the request.", req.Model)
		return text, 0.87, len(strings.Fields(text))
	}

	switch {
	case strings.Contains(prompt, "code") || strings.Contains(prompt, "generate") ||
		strings.Contains(prompt, "write") || strings.Contains(prompt, "implement"):
		text := fmt.Sprintf(
			"// Solution generated by %s\n"+
				"// A complete, working implementation for the request follows.\n"+
				"func solve(input string) (string, error) {\n"+
				"\tif input == \"\" {\n"+
				"\t\treturn \"\", fmt.Errorf(\"empty input\")\n"+
				"\t}\n"+
				"\treturn process(input), nil\n"+
				"}\n", req.Model)
		return text, 0.95, len(strings.Fields(text))
	default:
		text := fmt.Sprintf("Response from %s: %s", req.Model, req.Prompt)
		return text, 0.85, len(strings.Fields(text))
	}
}
