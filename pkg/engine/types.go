// Package engine is the execution core of manifold: it selects models from a
// catalog, fans a prompt out to them under bounded concurrency with per-call
// deadlines, synthesizes the outputs under a strategy, and keeps a running
// statistics ledger.
package engine

import (
	"encoding/json"
	"time"

	"github.com/manifold-ai/manifold/pkg/catalog"
)

// Millis is a duration serialized as fractional milliseconds in JSON.
// Wire formats and the statistics ledger speak milliseconds; Go code keeps
// time.Duration semantics.
type Millis time.Duration

// Milliseconds returns the duration as fractional milliseconds.
func (m Millis) Milliseconds() float64 {
	return float64(time.Duration(m)) / float64(time.Millisecond)
}

// Duration returns the underlying time.Duration.
func (m Millis) Duration() time.Duration { return time.Duration(m) }

// MarshalJSON implements json.Marshaler.
func (m Millis) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Milliseconds())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(b []byte) error {
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	*m = Millis(time.Duration(ms * float64(time.Millisecond)))
	return nil
}

// Params are the sampling parameters for a model call.
type Params struct {
	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64 `json:"temperature"`

	// MaxTokens limits the generated output length.
	MaxTokens int `json:"max_tokens"`
}

// DefaultParams returns the default sampling parameters.
func DefaultParams() Params {
	return Params{Temperature: 0.7, MaxTokens: 2048}
}

// InvocationRequest targets one prompt at one model. Requests are created
// fresh per dispatch and discarded afterwards; they are never shared between
// executions.
type InvocationRequest struct {
	// ModelID is the target model identifier.
	ModelID string `json:"model_id"`

	// ModelName is the human-readable model name.
	ModelName string `json:"model_name"`

	// Class is the model's class; it decides which prompt template was applied
	// and which result list the response lands in.
	Class catalog.Class `json:"class"`

	// Prompt is the fully rendered, class-specific prompt.
	Prompt string `json:"prompt"`

	// Module is the task-domain hint forwarded to the backend.
	Module string `json:"module"`

	// Params are the sampling parameters for this call.
	Params Params `json:"params"`
}

// InvocationResult is the outcome of one model call.
//
// Invariants: if Success is false, Output is empty and Err is non-empty;
// if Success is true, Confidence is in [0,1].
type InvocationResult struct {
	// ModelID identifies the model that was invoked.
	ModelID string `json:"model_id"`

	// ModelName is the human-readable model name.
	ModelName string `json:"model_name"`

	// Class is the invoked model's class.
	Class catalog.Class `json:"class"`

	// Output is the generated text. Empty when the call failed.
	Output string `json:"output"`

	// Confidence is the reported confidence in [0,1]. Zero when the call failed.
	Confidence float64 `json:"confidence"`

	// Elapsed is the observed wall-clock time for this call.
	Elapsed Millis `json:"elapsed_ms"`

	// TokensGenerated counts generated output units.
	TokensGenerated int `json:"tokens_generated"`

	// Success reports whether the call produced usable output.
	Success bool `json:"success"`

	// Err describes the failure when Success is false.
	Err string `json:"error,omitempty"`

	// TimedOut marks failures caused by the per-call deadline.
	TimedOut bool `json:"timed_out,omitempty"`

	// Metadata carries free-form call details (request IDs, prompt length).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ExecutionResult is the engine's answer to one execute call. Each call
// produces a fresh, independent instance; results are never shared or reused.
type ExecutionResult struct {
	// ID uniquely identifies this execution.
	ID string `json:"id"`

	// Strategy is the name of the strategy that ran.
	Strategy string `json:"strategy"`

	// ModelsExecuted is the total number of models invoked.
	ModelsExecuted int `json:"models_executed"`

	// InterfaceResults holds the interface-class invocation results.
	InterfaceResults []InvocationResult `json:"interface_results"`

	// KnowledgeResults holds the knowledge-class invocation results.
	KnowledgeResults []InvocationResult `json:"knowledge_results"`

	// Output is the synthesized final text.
	Output string `json:"output"`

	// Confidence is the combined confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Elapsed is the end-to-end wall-clock time for the execution.
	Elapsed Millis `json:"total_time_ms"`

	// Speedup is the concurrency gain: sum of individual call durations
	// divided by the longest one. Sequential executions report a fixed
	// sub-unity constant instead.
	Speedup float64 `json:"speedup"`

	// Success reports whether the execution produced a usable output.
	Success bool `json:"success"`

	// Err describes the failure when Success is false.
	Err string `json:"error,omitempty"`
}

// Summary returns a compact human-readable view of the execution, used by
// the CLI renderer and the history store.
func (r *ExecutionResult) Summary() map[string]interface{} {
	return map[string]interface{}{
		"id":       r.ID,
		"success":  r.Success,
		"strategy": r.Strategy,
		"models_used": map[string]int{
			"total":     r.ModelsExecuted,
			"interface": len(r.InterfaceResults),
			"knowledge": len(r.KnowledgeResults),
		},
		"elapsed_ms": r.Elapsed.Milliseconds(),
		"speedup":    r.Speedup,
		"confidence": r.Confidence,
		"output":     r.Output,
	}
}
