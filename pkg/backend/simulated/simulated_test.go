package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifold-ai/manifold/pkg/backend"
)

func TestGenerate_InterfaceModel(t *testing.T) {
	be := New(WithLatencyScale(0.001))

	resp, err := be.Generate(context.Background(), backend.GenerateRequest{
		Model:  "manifold-code-7b",
		Prompt: "Write code for a fibonacci generator",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, 0.95, resp.Confidence)
	assert.Equal(t, "manifold-code-7b", resp.Model)
	assert.NotEmpty(t, resp.RequestID)
	assert.Positive(t, resp.TokensGenerated)
}

func TestGenerate_KnowledgeModel(t *testing.T) {
	be := New(WithLatencyScale(0.001))

	resp, err := be.Generate(context.Background(), backend.GenerateRequest{
		Model:  "manifold-knowledge-7b",
		Prompt: "anything",
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "Best practices")
	assert.Equal(t, 0.88, resp.Confidence)
}

func TestGenerate_HonorsDeadline(t *testing.T) {
	be := New() // full latency: interface responses take 500ms

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := be.Generate(ctx, backend.GenerateRequest{Model: "manifold-chat-7b", Prompt: "hi"})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestGenerate_KnowledgeFasterThanInterface(t *testing.T) {
	be := New(WithLatencyScale(0.05)) // interface 25ms, knowledge 15ms

	start := time.Now()
	_, err := be.Generate(context.Background(), backend.GenerateRequest{Model: "manifold-knowledge-7b"})
	require.NoError(t, err)
	knowledgeElapsed := time.Since(start)

	start = time.Now()
	_, err = be.Generate(context.Background(), backend.GenerateRequest{Model: "manifold-chat-7b"})
	require.NoError(t, err)
	interfaceElapsed := time.Since(start)

	assert.Less(t, knowledgeElapsed, interfaceElapsed)
}

func TestGenerate_ModuleShapesResponse(t *testing.T) {
	be := New(WithLatencyScale(0.001))

	tests := []struct {
		module string
		want   string
	}{
		{"documents", "Document analysis"},
		{"database", "SELECT"},
		{"browser", "Browsing summary"},
	}
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			resp, err := be.Generate(context.Background(), backend.GenerateRequest{
				Model:  "manifold-chat-7b",
				Prompt: "handle this request",
				Module: tt.module,
			})
			require.NoError(t, err)
			assert.Contains(t, resp.Text, tt.want)
		})
	}
}
