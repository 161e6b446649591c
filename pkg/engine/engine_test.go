package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifold-ai/manifold/pkg/catalog"
	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

// scriptedInvoker returns per-model canned results and records the prompts
// each model received.
type scriptedInvoker struct {
	mu      sync.Mutex
	results map[string]InvocationResult
	prompts map[string][]string
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{
		results: make(map[string]InvocationResult),
		prompts: make(map[string][]string),
	}
}

func (s *scriptedInvoker) succeed(model string, confidence float64, elapsed time.Duration) {
	s.results[model] = InvocationResult{
		Output:     "output from " + model,
		Confidence: confidence,
		Elapsed:    Millis(elapsed),
		Success:    true,
	}
}

func (s *scriptedInvoker) fail(model string, elapsed time.Duration) {
	s.results[model] = InvocationResult{
		Elapsed: Millis(elapsed),
		Success: false,
		Err:     "backend unavailable",
	}
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req InvocationRequest) InvocationResult {
	s.mu.Lock()
	s.prompts[req.ModelID] = append(s.prompts[req.ModelID], req.Prompt)
	r, ok := s.results[req.ModelID]
	s.mu.Unlock()

	if !ok {
		return InvocationResult{
			ModelID: req.ModelID, ModelName: req.ModelName, Class: req.Class,
			Success: false, Err: "unscripted model",
		}
	}
	r.ModelID = req.ModelID
	r.ModelName = req.ModelName
	r.Class = req.Class
	return r
}

func (s *scriptedInvoker) promptsFor(model string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[model]
}

func testCatalog() *catalog.Static {
	return catalog.NewStatic([]catalog.ModelDescriptor{
		{ID: "chat-a", Name: "Chat A", Class: catalog.ClassInterface, Tags: []string{"code-generation"}},
		{ID: "chat-b", Name: "Chat B", Class: catalog.ClassInterface},
		{ID: "chat-c", Name: "Chat C", Class: catalog.ClassInterface},
		{ID: "know-a", Name: "Know A", Class: catalog.ClassKnowledge},
		{ID: "know-b", Name: "Know B", Class: catalog.ClassKnowledge},
	})
}

func newTestEngine(t *testing.T, inv Invoker) *Engine {
	t.Helper()
	return New(testCatalog(), nil, WithInvoker(inv))
}

func TestExecute_Parallel(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("chat-a", 0.95, 500*time.Millisecond)
	inv.succeed("chat-b", 0.90, 500*time.Millisecond)
	inv.succeed("know-a", 0.85, 300*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: Parallel{NumInterface: 2, NumKnowledge: 1},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "parallel", result.Strategy)
	assert.Equal(t, 3, result.ModelsExecuted)
	assert.Len(t, result.InterfaceResults, 2)
	assert.Len(t, result.KnowledgeResults, 1)

	// Best interface (0.95) with knowledge context: 0.7*0.95 + 0.3*0.85 = 0.92.
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
	assert.Contains(t, result.Output, "output from chat-a")
	assert.Contains(t, result.Output, "--- Knowledge Context (from Know A) ---")

	// (500+500+300)/500 = 2.6.
	assert.InDelta(t, 2.6, result.Speedup, 1e-9)

	// Class-specific prompt templates were applied.
	require.Len(t, inv.promptsFor("chat-a"), 1)
	assert.Contains(t, inv.promptsFor("chat-a")[0], "complete, working solution")
	require.Len(t, inv.promptsFor("know-a"), 1)
	assert.Contains(t, inv.promptsFor("know-a")[0], "common pitfalls")
}

func TestExecute_ParallelPartialFailure(t *testing.T) {
	inv := newScriptedInvoker()
	inv.fail("chat-a", 100*time.Millisecond)
	inv.succeed("chat-b", 0.80, 500*time.Millisecond)
	inv.fail("know-a", 100*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: Parallel{NumInterface: 2, NumKnowledge: 1},
	})
	require.NoError(t, err)

	// One surviving interface result carries the execution.
	assert.True(t, result.Success)
	assert.Equal(t, "output from chat-b", result.Output)
	assert.InDelta(t, 0.8*0.8, result.Confidence, 1e-9)
	assert.Equal(t, 3, result.ModelsExecuted)
}

func TestExecute_ParallelAllFail(t *testing.T) {
	inv := newScriptedInvoker()
	inv.fail("chat-a", 100*time.Millisecond)
	inv.fail("chat-b", 100*time.Millisecond)
	inv.fail("know-a", 100*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: Parallel{NumInterface: 2, NumKnowledge: 1},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.Output)
	assert.Zero(t, result.Confidence)
	assert.NotEmpty(t, result.Err)
	assert.Equal(t, 3, result.ModelsExecuted)
	assert.Len(t, result.InterfaceResults, 2)
	assert.Len(t, result.KnowledgeResults, 1)
}

func TestExecute_InterfaceOnly(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("chat-a", 0.91, 500*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: InterfaceOnly{},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "interface_only", result.Strategy)
	assert.Equal(t, 1, result.ModelsExecuted)
	// Single-model passthrough: no synthesis penalty, no speedup.
	assert.Equal(t, "output from chat-a", result.Output)
	assert.InDelta(t, 0.91, result.Confidence, 1e-9)
	assert.Equal(t, 1.0, result.Speedup)
	assert.Empty(t, result.KnowledgeResults)
}

func TestExecute_KnowledgeOnly(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("know-a", 0.87, 300*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{
		Prompt:   "explain raft",
		Strategy: KnowledgeOnly{},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ModelsExecuted)
	assert.Equal(t, "output from know-a", result.Output)
	assert.InDelta(t, 0.87, result.Confidence, 1e-9)
	assert.Equal(t, 1.0, result.Speedup)
	assert.Empty(t, result.InterfaceResults)
}

func TestExecute_Sequential(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("chat-a", 0.95, 500*time.Millisecond)
	inv.succeed("know-a", 0.85, 300*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: Sequential{},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "sequential", result.Strategy)
	assert.Equal(t, 2, result.ModelsExecuted)
	assert.Equal(t, SequentialSpeedup, result.Speedup)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)

	// The knowledge call sees the interface output as context.
	require.Len(t, inv.promptsFor("know-a"), 1)
	assert.Contains(t, inv.promptsFor("know-a")[0], "Context from interface model:")
	assert.Contains(t, inv.promptsFor("know-a")[0], "output from chat-a")
}

func TestExecute_SequentialInterfaceFails(t *testing.T) {
	inv := newScriptedInvoker()
	inv.fail("chat-a", 100*time.Millisecond)
	inv.succeed("know-a", 0.85, 300*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: Sequential{},
	})
	require.NoError(t, err)

	// The chain degrades to a knowledge-only answer with its penalty.
	assert.True(t, result.Success)
	assert.Equal(t, "output from know-a", result.Output)
	assert.InDelta(t, 0.6*0.85, result.Confidence, 1e-9)

	// The knowledge prompt carries no interface context.
	require.Len(t, inv.promptsFor("know-a"), 1)
	assert.NotContains(t, inv.promptsFor("know-a")[0], "Context from interface model:")
}

func TestExecute_Consensus(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("chat-a", 0.80, 400*time.Millisecond)
	inv.succeed("chat-b", 0.92, 400*time.Millisecond)
	inv.succeed("chat-c", 0.92, 400*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: Consensus{MaxModels: 3},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "consensus", result.Strategy)
	// Pool capped at 3 even though 5 models exist.
	assert.Equal(t, 3, result.ModelsExecuted)

	// Exact tie between chat-b and chat-c goes to the earlier submission.
	assert.Equal(t, "output from chat-b", result.Output)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
}

func TestExecute_NoModelsAvailable(t *testing.T) {
	empty := catalog.NewStatic(nil)
	e := New(empty, nil, WithInvoker(newScriptedInvoker()))

	result, err := e.Execute(context.Background(), Request{Prompt: "anything"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "no models available", result.Err)
	assert.Zero(t, result.ModelsExecuted)
	assert.Empty(t, result.Output)
	assert.Zero(t, result.Confidence)
	assert.NotEmpty(t, result.ID)

	// The failed execution is still recorded.
	assert.Equal(t, int64(1), e.Statistics().TotalExecutions)
}

func TestExecute_EmptyPrompt(t *testing.T) {
	e := newTestEngine(t, newScriptedInvoker())

	_, err := e.Execute(context.Background(), Request{Prompt: ""})
	require.Error(t, err)

	var verr *pkgerrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestExecute_FilterNarrowsCandidates(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("chat-a", 0.9, 500*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: Parallel{NumInterface: 3, NumKnowledge: 2},
		Filter:   `"code-generation" in model.tags`,
	})
	require.NoError(t, err)

	// Only chat-a carries the tag; no knowledge model matches.
	assert.Equal(t, 1, result.ModelsExecuted)
	assert.Equal(t, "output from chat-a", result.Output)
	assert.InDelta(t, 0.8*0.9, result.Confidence, 1e-9)
}

func TestExecute_FilterCompileError(t *testing.T) {
	e := newTestEngine(t, newScriptedInvoker())

	_, err := e.Execute(context.Background(), Request{
		Prompt: "anything",
		Filter: "model.tags +",
	})
	require.Error(t, err)

	var verr *pkgerrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestExecute_ContextRenderedIntoPrompts(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("chat-a", 0.9, 500*time.Millisecond)

	e := newTestEngine(t, inv)
	_, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: InterfaceOnly{},
		Context:  map[string]string{"language": "go"},
	})
	require.NoError(t, err)

	require.Len(t, inv.promptsFor("chat-a"), 1)
	assert.Contains(t, inv.promptsFor("chat-a")[0], "language: go")
}

func TestStatistics_Monotonic(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("chat-a", 0.95, 500*time.Millisecond)
	inv.succeed("chat-b", 0.90, 500*time.Millisecond)
	inv.succeed("know-a", 0.85, 300*time.Millisecond)

	e := newTestEngine(t, inv)

	const k = 7
	for i := 0; i < k; i++ {
		strategy := Strategy(Parallel{NumInterface: 2, NumKnowledge: 1})
		if i%2 == 1 {
			strategy = InterfaceOnly{}
		}
		_, err := e.Execute(context.Background(), Request{Prompt: "p", Strategy: strategy})
		require.NoError(t, err)
	}

	snap := e.Statistics()
	assert.Equal(t, int64(k), snap.TotalExecutions)
	assert.Equal(t, snap.TotalExecutions, snap.ParallelExecutions+snap.SingleExecutions)
	assert.Equal(t, int64(4), snap.ParallelExecutions)
	assert.Equal(t, int64(3), snap.SingleExecutions)
	assert.Len(t, snap.Recent, k)
	assert.Greater(t, snap.AverageSpeedup, 1.0)
}

func TestSetWeights_AffectsLaterExecutions(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("chat-a", 1.0, 500*time.Millisecond)
	inv.succeed("know-a", 1.0, 300*time.Millisecond)

	e := newTestEngine(t, inv)
	require.NoError(t, e.SetWeights(Weights{
		Interface: 0.5, Knowledge: 0.5, InterfaceOnly: 0.8, KnowledgeOnly: 0.6,
	}))

	result, err := e.Execute(context.Background(), Request{
		Prompt:   "p",
		Strategy: Parallel{NumInterface: 1, NumKnowledge: 1},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
}

func TestExecute_DefaultStrategyIsParallel(t *testing.T) {
	inv := newScriptedInvoker()
	inv.succeed("chat-a", 0.9, 500*time.Millisecond)
	inv.succeed("chat-b", 0.9, 500*time.Millisecond)
	inv.succeed("know-a", 0.9, 300*time.Millisecond)

	e := newTestEngine(t, inv)
	result, err := e.Execute(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	assert.Equal(t, "parallel", result.Strategy)
	assert.Equal(t, DefaultNumInterface+DefaultNumKnowledge, result.ModelsExecuted)
}

type moduleRecordingInvoker struct {
	mu      sync.Mutex
	modules []string
}

func (m *moduleRecordingInvoker) Invoke(ctx context.Context, req InvocationRequest) InvocationResult {
	m.mu.Lock()
	m.modules = append(m.modules, req.Module)
	m.mu.Unlock()
	return InvocationResult{
		ModelID: req.ModelID, ModelName: req.ModelName, Class: req.Class,
		Output: "ok", Confidence: 0.9, Success: true,
	}
}

func TestExecute_ModuleForwardedToInvoker(t *testing.T) {
	inv := &moduleRecordingInvoker{}
	e := newTestEngine(t, inv)

	_, err := e.Execute(context.Background(), Request{
		Prompt:   "summarize the quarterly report",
		Strategy: Parallel{NumInterface: 1, NumKnowledge: 1},
		Module:   "documents",
	})
	require.NoError(t, err)

	inv.mu.Lock()
	defer inv.mu.Unlock()
	require.Len(t, inv.modules, 2)
	for _, m := range inv.modules {
		assert.Equal(t, "documents", m)
	}
}

func TestExecute_ModuleDefaultsToCodeGeneration(t *testing.T) {
	inv := &moduleRecordingInvoker{}
	e := newTestEngine(t, inv)

	_, err := e.Execute(context.Background(), Request{
		Prompt:   "write a parser",
		Strategy: InterfaceOnly{},
	})
	require.NoError(t, err)

	inv.mu.Lock()
	defer inv.mu.Unlock()
	require.Len(t, inv.modules, 1)
	assert.Equal(t, DefaultModule, inv.modules[0])
}
