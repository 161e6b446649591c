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

// Package config loads and validates the manifold configuration from YAML
// files and environment variables. Environment variables take precedence
// over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manifold-ai/manifold/pkg/catalog"
	"github.com/manifold-ai/manifold/pkg/engine"
	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

// Config is the complete manifold configuration.
type Config struct {
	Log     LogConfig      `yaml:"log"`
	Engine  EngineConfig   `yaml:"engine"`
	Weights engine.Weights `yaml:"weights"`
	Backend BackendConfig  `yaml:"backend"`
	Server  ServerConfig   `yaml:"server"`
	Store   StoreConfig    `yaml:"store"`

	// Models optionally replaces the built-in model catalog.
	Models []catalog.ModelDescriptor `yaml:"models,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Environment: LOG_LEVEL
	Level string `yaml:"level"`

	// Format is the output format: json or text.
	// Environment: LOG_FORMAT
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`
}

// EngineConfig configures the execution core.
type EngineConfig struct {
	// Concurrency bounds the number of in-flight model calls.
	// Environment: MANIFOLD_CONCURRENCY
	Concurrency int `yaml:"concurrency"`

	// PerCallTimeout is the deadline for one model call.
	// Environment: MANIFOLD_PER_CALL_TIMEOUT
	PerCallTimeout time.Duration `yaml:"per_call_timeout"`

	// NumInterface is the default interface-model fan-out.
	NumInterface int `yaml:"num_interface"`

	// NumKnowledge is the default knowledge-model fan-out.
	NumKnowledge int `yaml:"num_knowledge"`

	// LedgerCapacity is the recent-history ring size.
	LedgerCapacity int `yaml:"ledger_capacity"`

	// Temperature is the default sampling temperature.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens is the default generation length limit.
	MaxTokens int `yaml:"max_tokens"`
}

// BackendConfig selects and configures the model backend.
type BackendConfig struct {
	// Type is the backend kind: "simulated" or "http".
	// Environment: MANIFOLD_BACKEND
	Type string `yaml:"type"`

	// Endpoint is the HTTP backend base URL. Required when Type is "http".
	// Environment: MANIFOLD_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timeout is the HTTP client timeout for one request.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// RequestsPerSecond rate-limits calls to the HTTP backend. Zero disables
	// the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`

	// Burst is the rate limiter burst size.
	Burst int `yaml:"burst,omitempty"`

	// Retries enables retry with exponential backoff on transient failures.
	Retries bool `yaml:"retries"`

	// LatencyScale scales the simulated backend's latencies, for tests and
	// demos. 1.0 is real-time.
	LatencyScale float64 `yaml:"latency_scale,omitempty"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address.
	// Environment: MANIFOLD_LISTEN_ADDR
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig configures the execution-history store.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means <data dir>/history.db.
	// Environment: MANIFOLD_STORE_PATH
	Path string `yaml:"path,omitempty"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			Concurrency:    engine.DefaultConcurrency,
			PerCallTimeout: engine.DefaultPerCallTimeout,
			NumInterface:   engine.DefaultNumInterface,
			NumKnowledge:   engine.DefaultNumKnowledge,
			LedgerCapacity: engine.DefaultLedgerCapacity,
			Temperature:    engine.DefaultParams().Temperature,
			MaxTokens:      engine.DefaultParams().MaxTokens,
		},
		Weights: engine.DefaultWeights(),
		Backend: BackendConfig{
			Type:         "simulated",
			Timeout:      60 * time.Second,
			Retries:      true,
			LatencyScale: 1.0,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8787",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from an optional YAML file and the environment.
// If configPath is empty, only defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &pkgerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyDefaults fills zero values left by a minimal config file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Engine.Concurrency == 0 {
		c.Engine.Concurrency = d.Engine.Concurrency
	}
	if c.Engine.PerCallTimeout == 0 {
		c.Engine.PerCallTimeout = d.Engine.PerCallTimeout
	}
	if c.Engine.NumInterface == 0 {
		c.Engine.NumInterface = d.Engine.NumInterface
	}
	if c.Engine.NumKnowledge == 0 {
		c.Engine.NumKnowledge = d.Engine.NumKnowledge
	}
	if c.Engine.LedgerCapacity == 0 {
		c.Engine.LedgerCapacity = d.Engine.LedgerCapacity
	}
	if c.Engine.Temperature == 0 {
		c.Engine.Temperature = d.Engine.Temperature
	}
	if c.Engine.MaxTokens == 0 {
		c.Engine.MaxTokens = d.Engine.MaxTokens
	}
	if c.Weights == (engine.Weights{}) {
		c.Weights = d.Weights
	}
	if c.Backend.Type == "" {
		c.Backend.Type = d.Backend.Type
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = d.Backend.Timeout
	}
	if c.Backend.LatencyScale == 0 {
		c.Backend.LatencyScale = d.Backend.LatencyScale
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
}

// loadFromEnv applies environment overrides on top of file values.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "true" || val == "1"
	}
	if val := os.Getenv("MANIFOLD_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.Concurrency = n
		}
	}
	if val := os.Getenv("MANIFOLD_PER_CALL_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Engine.PerCallTimeout = d
		}
	}
	if val := os.Getenv("MANIFOLD_BACKEND"); val != "" {
		c.Backend.Type = val
	}
	if val := os.Getenv("MANIFOLD_ENDPOINT"); val != "" {
		c.Backend.Endpoint = val
	}
	if val := os.Getenv("MANIFOLD_LISTEN_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("MANIFOLD_STORE_PATH"); val != "" {
		c.Store.Path = val
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Engine.Concurrency <= 0 {
		return &pkgerrors.ConfigError{
			Key:    "engine.concurrency",
			Reason: fmt.Sprintf("must be positive, got %d", c.Engine.Concurrency),
		}
	}
	if c.Engine.PerCallTimeout <= 0 {
		return &pkgerrors.ConfigError{
			Key:    "engine.per_call_timeout",
			Reason: fmt.Sprintf("must be positive, got %v", c.Engine.PerCallTimeout),
		}
	}
	if c.Engine.NumInterface < 0 || c.Engine.NumKnowledge < 0 {
		return &pkgerrors.ConfigError{
			Key:    "engine.num_interface",
			Reason: "fan-out counts must not be negative",
		}
	}

	if err := c.Weights.Validate(); err != nil {
		return &pkgerrors.ConfigError{
			Key:    "weights",
			Reason: "invalid synthesis weights",
			Cause:  err,
		}
	}

	switch c.Backend.Type {
	case "simulated":
	case "http":
		if c.Backend.Endpoint == "" {
			return &pkgerrors.ConfigError{
				Key:    "backend.endpoint",
				Reason: "required when backend.type is http",
			}
		}
	default:
		return &pkgerrors.ConfigError{
			Key:    "backend.type",
			Reason: fmt.Sprintf("unknown backend %q (expected simulated or http)", c.Backend.Type),
		}
	}

	for i, m := range c.Models {
		if m.ID == "" {
			return &pkgerrors.ConfigError{
				Key:    fmt.Sprintf("models[%d].id", i),
				Reason: "model id must not be empty",
			}
		}
		if !m.Class.Valid() {
			return &pkgerrors.ConfigError{
				Key:    fmt.Sprintf("models[%d].class", i),
				Reason: fmt.Sprintf("unknown model class %q", m.Class),
			}
		}
	}

	return nil
}

// Catalog builds the model catalog: the configured models if any, otherwise
// the built-in defaults.
func (c *Config) Catalog() *catalog.Static {
	if len(c.Models) > 0 {
		return catalog.NewStatic(c.Models)
	}
	return catalog.Default()
}

// Params returns the configured default sampling parameters.
func (c *Config) Params() engine.Params {
	return engine.Params{
		Temperature: c.Engine.Temperature,
		MaxTokens:   c.Engine.MaxTokens,
	}
}
