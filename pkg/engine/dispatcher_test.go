package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifold-ai/manifold/pkg/catalog"
)

// funcInvoker adapts a function to the Invoker interface for tests.
type funcInvoker func(ctx context.Context, req InvocationRequest) InvocationResult

func (f funcInvoker) Invoke(ctx context.Context, req InvocationRequest) InvocationResult {
	return f(ctx, req)
}

func makeRequests(n int) []InvocationRequest {
	reqs := make([]InvocationRequest, n)
	for i := range reqs {
		reqs[i] = InvocationRequest{
			ModelID:   string(rune('a' + i)),
			ModelName: string(rune('a' + i)),
			Class:     catalog.ClassInterface,
			Prompt:    "p",
		}
	}
	return reqs
}

func TestDispatchAll_OneResultPerRequestInOrder(t *testing.T) {
	inv := funcInvoker(func(ctx context.Context, req InvocationRequest) InvocationResult {
		// Vary completion order.
		if req.ModelID == "a" {
			time.Sleep(20 * time.Millisecond)
		}
		return InvocationResult{ModelID: req.ModelID, Success: true, Output: "ok"}
	})
	d := NewDispatcher(inv, 4, time.Second, nil)

	results := d.DispatchAll(context.Background(), makeRequests(5))

	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, string(rune('a'+i)), r.ModelID)
	}
}

func TestDispatchAll_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex

	inv := funcInvoker(func(ctx context.Context, req InvocationRequest) InvocationResult {
		n := inFlight.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return InvocationResult{ModelID: req.ModelID, Success: true}
	})
	d := NewDispatcher(inv, 2, time.Second, nil)

	results := d.DispatchAll(context.Background(), makeRequests(6))

	require.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatchAll_TimeoutDoesNotCancelSiblings(t *testing.T) {
	inv := funcInvoker(func(ctx context.Context, req InvocationRequest) InvocationResult {
		if req.ModelID == "a" {
			// Ignores cancellation entirely; the dispatcher must abandon it.
			time.Sleep(2 * time.Second)
			return InvocationResult{ModelID: req.ModelID, Success: true}
		}
		return InvocationResult{ModelID: req.ModelID, Success: true, Elapsed: Millis(10 * time.Millisecond)}
	})
	d := NewDispatcher(inv, 4, 50*time.Millisecond, nil)

	start := time.Now()
	results := d.DispatchAll(context.Background(), makeRequests(3))
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	assert.False(t, results[0].Success)
	assert.True(t, results[0].TimedOut)
	assert.Equal(t, Millis(50*time.Millisecond), results[0].Elapsed)
	assert.True(t, results[1].Success)
	assert.True(t, results[2].Success)

	// The batch returns as soon as the slow call is abandoned, not after it
	// actually finishes.
	assert.Less(t, elapsed, time.Second)
}

func TestDispatchAll_DeadlinePassedToInvoker(t *testing.T) {
	inv := funcInvoker(func(ctx context.Context, req InvocationRequest) InvocationResult {
		deadline, ok := ctx.Deadline()
		if !ok {
			return InvocationResult{ModelID: req.ModelID, Err: "no deadline"}
		}
		if time.Until(deadline) > 100*time.Millisecond {
			return InvocationResult{ModelID: req.ModelID, Err: "deadline too far"}
		}
		return InvocationResult{ModelID: req.ModelID, Success: true}
	})
	d := NewDispatcher(inv, 1, 100*time.Millisecond, nil)

	results := d.DispatchAll(context.Background(), makeRequests(1))
	require.Len(t, results, 1)
	assert.True(t, results[0].Success, results[0].Err)
}

func TestDispatchAll_CooperativeTimeoutResultWins(t *testing.T) {
	inv := funcInvoker(func(ctx context.Context, req InvocationRequest) InvocationResult {
		<-ctx.Done()
		return InvocationResult{
			ModelID:  req.ModelID,
			Success:  false,
			Err:      "model invocation timed out",
			TimedOut: true,
			Elapsed:  Millis(30 * time.Millisecond),
		}
	})
	d := NewDispatcher(inv, 1, 30*time.Millisecond, nil)

	results := d.DispatchAll(context.Background(), makeRequests(1))
	require.Len(t, results, 1)

	// The invoker observed cancellation within the grace period, so its own
	// result is kept rather than a synthesized one.
	assert.Equal(t, Millis(30*time.Millisecond), results[0].Elapsed)
	assert.True(t, results[0].TimedOut)
}

func TestDispatchAll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := funcInvoker(func(ctx context.Context, req InvocationRequest) InvocationResult {
		return InvocationResult{ModelID: req.ModelID, Success: true}
	})
	d := NewDispatcher(inv, 1, time.Second, nil)

	results := d.DispatchAll(ctx, makeRequests(2))
	require.Len(t, results, 2)
	// The batch still returns one result per request.
	for _, r := range results {
		assert.NotEmpty(t, r.ModelID)
	}
}

func TestDispatchAll_Empty(t *testing.T) {
	d := NewDispatcher(funcInvoker(func(context.Context, InvocationRequest) InvocationResult {
		return InvocationResult{}
	}), 1, time.Second, nil)

	assert.Nil(t, d.DispatchAll(context.Background(), nil))
}
