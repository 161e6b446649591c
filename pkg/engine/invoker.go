package engine

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/manifold-ai/manifold/internal/log"
	"github.com/manifold-ai/manifold/pkg/backend"
	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

// Invoker executes one prompt against one model. All failure modes —
// timeouts, connectivity, malformed output — are represented in the returned
// InvocationResult; Invoke never panics or returns an error to the caller.
type Invoker interface {
	Invoke(ctx context.Context, req InvocationRequest) InvocationResult
}

// BackendInvoker is an Invoker over a backend.Backend. The context carries
// the per-call deadline set by the dispatcher; the backend is expected to
// honor cancellation so timed-out work is actually interrupted.
type BackendInvoker struct {
	backend backend.Backend
	logger  *slog.Logger
}

// NewBackendInvoker creates an invoker over the given backend.
func NewBackendInvoker(be backend.Backend, logger *slog.Logger) *BackendInvoker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BackendInvoker{backend: be, logger: logger}
}

// Invoke runs the model call and maps the outcome onto an InvocationResult.
func (b *BackendInvoker) Invoke(ctx context.Context, req InvocationRequest) InvocationResult {
	start := time.Now()

	log.Trace(b.logger, "invoking model",
		slog.String(log.ModelIDKey, req.ModelID),
		slog.String("prompt", req.Prompt),
	)

	resp, err := b.backend.Generate(ctx, backend.GenerateRequest{
		Model:       req.ModelID,
		Prompt:      req.Prompt,
		Module:      req.Module,
		Temperature: req.Params.Temperature,
		MaxTokens:   req.Params.MaxTokens,
	})
	elapsed := time.Since(start)

	if err != nil {
		return b.failure(req, elapsed, err)
	}

	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	metadata := map[string]string{
		"prompt_length": strconv.Itoa(len(req.Prompt)),
	}
	if resp.RequestID != "" {
		metadata["request_id"] = resp.RequestID
	}

	b.logger.Debug("model invocation complete",
		log.ModelIDKey, req.ModelID,
		log.ModelClassKey, string(req.Class),
		log.DurationKey, elapsed.Milliseconds(),
		"confidence", confidence,
	)

	return InvocationResult{
		ModelID:         req.ModelID,
		ModelName:       req.ModelName,
		Class:           req.Class,
		Output:          resp.Text,
		Confidence:      confidence,
		Elapsed:         Millis(elapsed),
		TokensGenerated: resp.TokensGenerated,
		Success:         true,
		Metadata:        metadata,
	}
}

// failure builds a failed InvocationResult, distinguishing deadline expiry
// from other failures.
func (b *BackendInvoker) failure(req InvocationRequest, elapsed time.Duration, err error) InvocationResult {
	timedOut := errors.Is(err, context.DeadlineExceeded)

	var cause error
	if timedOut {
		cause = &pkgerrors.TimeoutError{
			Operation: "model invocation",
			Duration:  elapsed,
			Cause:     err,
		}
	} else {
		cause = &pkgerrors.ModelError{
			Model:   req.ModelID,
			Message: err.Error(),
			Cause:   err,
		}
	}

	b.logger.Warn("model invocation failed",
		log.ModelIDKey, req.ModelID,
		log.ModelClassKey, string(req.Class),
		log.DurationKey, elapsed.Milliseconds(),
		"timed_out", timedOut,
		log.Error(cause),
	)

	return InvocationResult{
		ModelID:    req.ModelID,
		ModelName:  req.ModelName,
		Class:      req.Class,
		Confidence: 0,
		Elapsed:    Millis(elapsed),
		Success:    false,
		Err:        cause.Error(),
		TimedOut:   timedOut,
	}
}
