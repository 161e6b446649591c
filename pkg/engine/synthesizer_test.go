package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifold-ai/manifold/pkg/catalog"
)

func okResult(model string, class catalog.Class, confidence float64, elapsed time.Duration) InvocationResult {
	return InvocationResult{
		ModelID:    model,
		ModelName:  model,
		Class:      class,
		Output:     "output from " + model,
		Confidence: confidence,
		Elapsed:    Millis(elapsed),
		Success:    true,
	}
}

func failedInvocation(model string, class catalog.Class, elapsed time.Duration) InvocationResult {
	return InvocationResult{
		ModelID:   model,
		ModelName: model,
		Class:     class,
		Elapsed:   Millis(elapsed),
		Success:   false,
		Err:       "backend unavailable",
	}
}

func TestCombine_BothClasses(t *testing.T) {
	s := NewSynthesizer(DefaultWeights())

	interfaceResults := []InvocationResult{okResult("chat-7b", catalog.ClassInterface, 0.95, 500*time.Millisecond)}
	knowledgeResults := []InvocationResult{okResult("knowledge-7b", catalog.ClassKnowledge, 0.85, 300*time.Millisecond)}

	output, confidence := s.Combine(interfaceResults, knowledgeResults)

	// 0.7*0.95 + 0.3*0.85 = 0.92
	assert.InDelta(t, 0.92, confidence, 1e-9)
	assert.Contains(t, output, "output from chat-7b")
	assert.Contains(t, output, "--- Knowledge Context (from knowledge-7b) ---")
	assert.Contains(t, output, "output from knowledge-7b")
}

func TestCombine_InterfaceOnlyPenalty(t *testing.T) {
	s := NewSynthesizer(DefaultWeights())

	interfaceResults := []InvocationResult{okResult("chat-7b", catalog.ClassInterface, 0.9, 500*time.Millisecond)}

	output, confidence := s.Combine(interfaceResults, nil)

	assert.Equal(t, "output from chat-7b", output)
	assert.InDelta(t, 0.8*0.9, confidence, 1e-9)
}

func TestCombine_KnowledgeOnlyPenalty(t *testing.T) {
	s := NewSynthesizer(DefaultWeights())

	knowledgeResults := []InvocationResult{okResult("knowledge-7b", catalog.ClassKnowledge, 0.9, 300*time.Millisecond)}

	output, confidence := s.Combine(nil, knowledgeResults)

	assert.Equal(t, "output from knowledge-7b", output)
	assert.InDelta(t, 0.6*0.9, confidence, 1e-9)
}

func TestCombine_FailuresAreSkipped(t *testing.T) {
	s := NewSynthesizer(DefaultWeights())

	interfaceResults := []InvocationResult{
		failedInvocation("chat-7b", catalog.ClassInterface, 100*time.Millisecond),
		okResult("chat-13b", catalog.ClassInterface, 0.8, 600*time.Millisecond),
	}

	output, confidence := s.Combine(interfaceResults, nil)

	assert.Equal(t, "output from chat-13b", output)
	assert.InDelta(t, 0.8*0.8, confidence, 1e-9)
}

func TestCombine_NothingSucceeded(t *testing.T) {
	s := NewSynthesizer(DefaultWeights())

	output, confidence := s.Combine(
		[]InvocationResult{failedInvocation("chat-7b", catalog.ClassInterface, 100*time.Millisecond)},
		[]InvocationResult{failedInvocation("knowledge-7b", catalog.ClassKnowledge, 100*time.Millisecond)},
	)

	assert.Empty(t, output)
	assert.Zero(t, confidence)
}

func TestVote_TieBreaksToEarliest(t *testing.T) {
	s := NewSynthesizer(DefaultWeights())

	results := []InvocationResult{
		okResult("a", catalog.ClassInterface, 0.80, time.Second),
		okResult("b", catalog.ClassInterface, 0.92, time.Second),
		okResult("c", catalog.ClassKnowledge, 0.92, time.Second),
	}

	winner := s.Vote(results)
	require.NotNil(t, winner)
	assert.Equal(t, "b", winner.ModelID)
}

func TestVote_NoSuccesses(t *testing.T) {
	s := NewSynthesizer(DefaultWeights())

	winner := s.Vote([]InvocationResult{
		failedInvocation("a", catalog.ClassInterface, time.Second),
	})
	assert.Nil(t, winner)
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	bad := DefaultWeights()
	bad.Interface = 0.5 // 0.5 + 0.3 != 1
	assert.Error(t, bad.Validate())

	bad = DefaultWeights()
	bad.KnowledgeOnly = 0
	assert.Error(t, bad.Validate())

	bad = DefaultWeights()
	bad.InterfaceOnly = 1.2
	assert.Error(t, bad.Validate())
}

func TestSetWeights_RejectsInvalid(t *testing.T) {
	s := NewSynthesizer(DefaultWeights())

	err := s.SetWeights(Weights{Interface: 0.9, Knowledge: 0.3, InterfaceOnly: 0.8, KnowledgeOnly: 0.6})
	require.Error(t, err)
	assert.Equal(t, DefaultWeights(), s.Weights())

	valid := Weights{Interface: 0.6, Knowledge: 0.4, InterfaceOnly: 0.9, KnowledgeOnly: 0.5}
	require.NoError(t, s.SetWeights(valid))
	assert.Equal(t, valid, s.Weights())
}

func TestSpeedupRatio(t *testing.T) {
	results := []InvocationResult{
		okResult("a", catalog.ClassInterface, 0.9, 500*time.Millisecond),
		okResult("b", catalog.ClassInterface, 0.9, 500*time.Millisecond),
		okResult("c", catalog.ClassKnowledge, 0.9, 300*time.Millisecond),
	}

	// (500+500+300)/500 = 2.6
	assert.InDelta(t, 2.6, speedupRatio(results), 1e-9)
}

func TestSpeedupRatio_CountsFailures(t *testing.T) {
	results := []InvocationResult{
		okResult("a", catalog.ClassInterface, 0.9, 400*time.Millisecond),
		failedInvocation("b", catalog.ClassInterface, 400*time.Millisecond),
	}

	assert.InDelta(t, 2.0, speedupRatio(results), 1e-9)
}

func TestSpeedupRatio_ZeroDurations(t *testing.T) {
	assert.Equal(t, 1.0, speedupRatio([]InvocationResult{{}, {}}))
	assert.Equal(t, 1.0, speedupRatio(nil))
}
