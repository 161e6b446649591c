package engine

import (
	"fmt"
	"sync"
)

// Weights is the synthesis policy table. The constants are heuristics, not
// truths about model quality, so deployments may tune or hot-reload them.
type Weights struct {
	// Interface is the interface result's share when both classes succeeded.
	Interface float64 `yaml:"interface" json:"interface"`

	// Knowledge is the knowledge result's share when both classes succeeded.
	Knowledge float64 `yaml:"knowledge" json:"knowledge"`

	// InterfaceOnly penalizes an interface result lacking corroborating context.
	InterfaceOnly float64 `yaml:"interface_only" json:"interface_only"`

	// KnowledgeOnly penalizes a knowledge result standing in as a final answer.
	KnowledgeOnly float64 `yaml:"knowledge_only" json:"knowledge_only"`
}

// DefaultWeights returns the reference policy table.
func DefaultWeights() Weights {
	return Weights{
		Interface:     0.7,
		Knowledge:     0.3,
		InterfaceOnly: 0.8,
		KnowledgeOnly: 0.6,
	}
}

// Validate checks that all weights are in (0,1] and the two-class shares sum to 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"interface":      w.Interface,
		"knowledge":      w.Knowledge,
		"interface_only": w.InterfaceOnly,
		"knowledge_only": w.KnowledgeOnly,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("synthesis weight %s must be in (0,1], got %v", name, v)
		}
	}
	if diff := w.Interface + w.Knowledge - 1.0; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("interface and knowledge weights must sum to 1, got %v", w.Interface+w.Knowledge)
	}
	return nil
}

// Synthesizer combines invocation results into one output and a combined
// confidence. Weight updates are serialized so synthesis may run while a
// config reload applies a new policy table.
type Synthesizer struct {
	mu      sync.RWMutex
	weights Weights
}

// NewSynthesizer creates a synthesizer with the given policy table.
func NewSynthesizer(weights Weights) *Synthesizer {
	return &Synthesizer{weights: weights}
}

// Weights returns the current policy table.
func (s *Synthesizer) Weights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// SetWeights swaps the policy table. Invalid tables are rejected.
func (s *Synthesizer) SetWeights(weights Weights) error {
	if err := weights.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.weights = weights
	s.mu.Unlock()
	return nil
}

// Combine merges the best interface and best knowledge results into one
// output string and a combined confidence. Either list may be empty; when
// neither class produced a success the output is empty with confidence 0.
func (s *Synthesizer) Combine(interfaceResults, knowledgeResults []InvocationResult) (string, float64) {
	s.mu.RLock()
	w := s.weights
	s.mu.RUnlock()

	bestInterface := bestOf(interfaceResults)
	bestKnowledge := bestOf(knowledgeResults)

	switch {
	case bestInterface != nil && bestKnowledge != nil:
		output := fmt.Sprintf("%s\n\n--- Knowledge Context (from %s) ---\n%s",
			bestInterface.Output, bestKnowledge.ModelName, bestKnowledge.Output)
		confidence := w.Interface*bestInterface.Confidence + w.Knowledge*bestKnowledge.Confidence
		return output, confidence

	case bestInterface != nil:
		return bestInterface.Output, w.InterfaceOnly * bestInterface.Confidence

	case bestKnowledge != nil:
		return bestKnowledge.Output, w.KnowledgeOnly * bestKnowledge.Confidence

	default:
		return "", 0
	}
}

// Vote returns the highest-confidence successful result from the pool,
// regardless of class. Exact ties go to the earliest-submitted result.
// Returns nil when no result succeeded.
func (s *Synthesizer) Vote(results []InvocationResult) *InvocationResult {
	return bestOf(results)
}

// bestOf scans in submission order and keeps the first result with the
// strictly highest confidence, so exact ties break to the earliest entry.
func bestOf(results []InvocationResult) *InvocationResult {
	var best *InvocationResult
	for i := range results {
		if !results[i].Success {
			continue
		}
		if best == nil || results[i].Confidence > best.Confidence {
			best = &results[i]
		}
	}
	return best
}

// speedupRatio is the theoretical concurrency gain for a batch: the summed
// individual durations divided by the longest one. Failed calls count too;
// they occupied a worker for their observed duration.
func speedupRatio(results []InvocationResult) float64 {
	var sum, max Millis
	for _, r := range results {
		sum += r.Elapsed
		if r.Elapsed > max {
			max = r.Elapsed
		}
	}
	if max <= 0 {
		return 1.0
	}
	return float64(sum) / float64(max)
}
