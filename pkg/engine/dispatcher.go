package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/manifold-ai/manifold/internal/log"
	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

const (
	// DefaultConcurrency is the default worker pool size, sized to the
	// maximum expected fan-out.
	DefaultConcurrency = 8

	// DefaultPerCallTimeout is the default deadline for one model call.
	DefaultPerCallTimeout = 30 * time.Second
)

// Dispatcher runs batches of invocation requests under bounded concurrency
// with an independent deadline per call. Partial failure is normal: a batch
// always returns one result per request once every call has completed or
// timed out, and one member's timeout never cancels its siblings.
type Dispatcher struct {
	invoker        Invoker
	concurrency    int
	perCallTimeout time.Duration
	logger         *slog.Logger
}

// NewDispatcher creates a dispatcher over the given invoker.
func NewDispatcher(invoker Invoker, concurrency int, perCallTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if perCallTimeout <= 0 {
		perCallTimeout = DefaultPerCallTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		invoker:        invoker,
		concurrency:    concurrency,
		perCallTimeout: perCallTimeout,
		logger:         logger,
	}
}

// DispatchAll invokes every request concurrently, at most `concurrency` in
// flight at a time, each under its own deadline. The returned slice has
// exactly one result per request, in submission order; completion order is
// non-deterministic, so results are tagged by request index rather than
// collected positionally.
func (d *Dispatcher) DispatchAll(ctx context.Context, requests []InvocationRequest) []InvocationResult {
	if len(requests) == 0 {
		return nil
	}

	type tagged struct {
		idx    int
		result InvocationResult
	}

	sem := make(chan struct{}, d.concurrency)
	completed := make(chan tagged, len(requests))

	start := time.Now()
	d.logger.Debug("starting dispatch",
		"requests", len(requests),
		"concurrency", d.concurrency,
		"per_call_timeout", d.perCallTimeout,
	)

	for i, req := range requests {
		go func(idx int, req InvocationRequest) {
			// Acquire a worker slot (blocks if the pool is saturated).
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				completed <- tagged{idx: idx, result: d.cancelled(req, ctx.Err())}
				return
			}
			defer func() { <-sem }()

			completed <- tagged{idx: idx, result: d.invokeWithDeadline(ctx, req)}
		}(i, req)
	}

	results := make([]InvocationResult, len(requests))
	for range requests {
		t := <-completed
		results[t.idx] = t.result
	}

	d.logger.Debug("dispatch complete",
		"requests", len(requests),
		log.DurationKey, time.Since(start).Milliseconds(),
	)

	return results
}

// invokeWithDeadline runs one invocation under the per-call deadline. The
// deadline context is passed into the invoker so cooperative backends stop
// work when it expires; if the call still does not return, the dispatcher
// abandons it and records a timeout result so siblings are never delayed.
func (d *Dispatcher) invokeWithDeadline(ctx context.Context, req InvocationRequest) InvocationResult {
	callCtx, cancel := context.WithTimeout(ctx, d.perCallTimeout)
	defer cancel()

	done := make(chan InvocationResult, 1)
	go func() {
		done <- d.invoker.Invoke(callCtx, req)
	}()

	select {
	case result := <-done:
		return result
	case <-callCtx.Done():
		// Grace period for a cooperative invoker to observe cancellation and
		// report its own timeout result.
		select {
		case result := <-done:
			return result
		case <-time.After(100 * time.Millisecond):
		}

		d.logger.Warn("abandoning unresponsive model call",
			log.ModelIDKey, req.ModelID,
			"per_call_timeout", d.perCallTimeout,
		)

		terr := &pkgerrors.TimeoutError{
			Operation: "model invocation",
			Duration:  d.perCallTimeout,
			Cause:     callCtx.Err(),
		}
		return InvocationResult{
			ModelID:   req.ModelID,
			ModelName: req.ModelName,
			Class:     req.Class,
			Elapsed:   Millis(d.perCallTimeout),
			Success:   false,
			Err:       terr.Error(),
			TimedOut:  true,
		}
	}
}

// cancelled builds a failed result for a request whose batch context ended
// before the request got a worker slot.
func (d *Dispatcher) cancelled(req InvocationRequest, err error) InvocationResult {
	return InvocationResult{
		ModelID:   req.ModelID,
		ModelName: req.ModelName,
		Class:     req.Class,
		Success:   false,
		Err:       "dispatch cancelled: " + err.Error(),
	}
}
