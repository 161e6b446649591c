// Copyright 2026 The Manifold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("execution complete", StrategyKey, "parallel", DurationKey, int64(812))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "execution complete", entry["msg"])
	assert.Equal(t, "parallel", entry["strategy"])
	assert.Equal(t, float64(812), entry["duration_ms"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatJSON, Output: &buf})

	logger.Info("should be dropped")
	assert.Empty(t, buf.String())

	logger.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestFromEnv_Debug(t *testing.T) {
	t.Setenv("MANIFOLD_DEBUG", "1")
	t.Setenv("MANIFOLD_LOG_LEVEL", "error") // should be ignored when debug is set

	cfg := FromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.AddSource)
}

func TestFromEnv_LevelPrecedence(t *testing.T) {
	t.Setenv("MANIFOLD_DEBUG", "")
	t.Setenv("MANIFOLD_LOG_LEVEL", "warn")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := FromEnv()
	assert.Equal(t, "warn", cfg.Level)
}

func TestWithModel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithModel(logger, "chat-7b", "interface").Info("invoking")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "chat-7b", entry["model_id"])
	assert.Equal(t, "interface", entry["model_class"])
}

func TestTrace_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	Trace(logger, "rendered prompt", slog.String("prompt", "hi"))
	assert.Empty(t, buf.String())
}

func TestTrace_Enabled(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "trace", Format: FormatJSON, Output: &buf})

	Trace(logger, "rendered prompt", slog.String("prompt", "hi"))
	assert.Contains(t, buf.String(), "rendered prompt")
}
