package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		numInterface int
		numKnowledge int
		want         Strategy
	}{
		{
			name:  "parallel with explicit counts",
			input: "parallel", numInterface: 3, numKnowledge: 2,
			want: Parallel{NumInterface: 3, NumKnowledge: 2},
		},
		{
			name:  "empty defaults to parallel",
			input: "", numInterface: 0, numKnowledge: 0,
			want: Parallel{NumInterface: DefaultNumInterface, NumKnowledge: DefaultNumKnowledge},
		},
		{
			name:  "negative counts fall back to defaults",
			input: "parallel", numInterface: -1, numKnowledge: -5,
			want: Parallel{NumInterface: DefaultNumInterface, NumKnowledge: DefaultNumKnowledge},
		},
		{name: "interface only", input: "interface_only", want: InterfaceOnly{}},
		{name: "knowledge only", input: "knowledge_only", want: KnowledgeOnly{}},
		{name: "sequential", input: "sequential", want: Sequential{}},
		{name: "consensus", input: "consensus", want: Consensus{MaxModels: DefaultConsensusModels}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.input, tt.numInterface, tt.numKnowledge)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStrategy_Unknown(t *testing.T) {
	_, err := ParseStrategy("fastest", 0, 0)
	require.Error(t, err)

	var verr *pkgerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "strategy", verr.Field)
	assert.Contains(t, verr.Suggestion, "parallel")
}

func TestStrategyNames(t *testing.T) {
	names := StrategyNames()
	assert.Len(t, names, 5)

	for _, name := range names {
		s, err := ParseStrategy(name, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
}
