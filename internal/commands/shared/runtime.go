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

package shared

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/manifold-ai/manifold/internal/config"
	"github.com/manifold-ai/manifold/internal/log"
	"github.com/manifold-ai/manifold/pkg/backend"
	"github.com/manifold-ai/manifold/pkg/backend/httpapi"
	"github.com/manifold-ai/manifold/pkg/backend/simulated"
	"github.com/manifold-ai/manifold/pkg/engine"
)

// ConfigFilePath resolves the config file in use: the --config flag, or the
// default XDG path if a file exists there. Empty means defaults plus env only.
func ConfigFilePath() string {
	if path := GetConfigPath(); path != "" {
		return path
	}
	defaultPath, err := config.ConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(defaultPath); err != nil {
		return ""
	}
	return defaultPath
}

// LoadConfig loads the configuration from the resolved config file, or
// defaults plus environment when no file exists.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(ConfigFilePath())
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// NewLogger builds the CLI logger from config plus the global flags.
// --verbose lowers the level to debug; --quiet raises it to error.
func NewLogger(cfg *config.Config) *slog.Logger {
	logCfg := &log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	}
	if GetVerbose() {
		logCfg.Level = "debug"
	}
	if GetQuiet() {
		logCfg.Level = "error"
	}
	return log.New(logCfg)
}

// NewBackend constructs the configured model backend.
func NewBackend(cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	var be backend.Backend

	switch cfg.Backend.Type {
	case "simulated":
		be = simulated.New(simulated.WithLatencyScale(cfg.Backend.LatencyScale))
	case "http":
		client, err := httpapi.New(httpapi.Config{
			BaseURL:           cfg.Backend.Endpoint,
			Timeout:           cfg.Backend.Timeout,
			RequestsPerSecond: cfg.Backend.RequestsPerSecond,
			Burst:             cfg.Backend.Burst,
			Logger:            logger,
		})
		if err != nil {
			return nil, NewBackendError("failed to create http backend", err)
		}
		be = client
	default:
		return nil, NewConfigError(fmt.Sprintf("unknown backend type %q", cfg.Backend.Type), nil)
	}

	if cfg.Backend.Retries {
		be = backend.WithRetry(be, backend.DefaultRetryConfig())
	}
	return be, nil
}

// NewEngine constructs the execution engine from configuration.
func NewEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	be, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	return engine.New(cfg.Catalog(), be,
		engine.WithLogger(logger),
		engine.WithConcurrency(cfg.Engine.Concurrency),
		engine.WithPerCallTimeout(cfg.Engine.PerCallTimeout),
		engine.WithWeights(cfg.Weights),
		engine.WithLedgerCapacity(cfg.Engine.LedgerCapacity),
		engine.WithParams(cfg.Params()),
	), nil
}
