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

// Package serve implements `manifold serve`: the long-running HTTP API.
package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/manifold-ai/manifold/internal/commands/shared"
	"github.com/manifold-ai/manifold/internal/config"
	"github.com/manifold-ai/manifold/internal/server"
	"github.com/manifold-ai/manifold/internal/store"
	"github.com/manifold-ai/manifold/internal/tracing"
)

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var (
		addr      string
		noHistory bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve runs the engine behind an HTTP API: execution, statistics, the
model catalog, and persisted history, plus Prometheus metrics on /metrics.

While running, edits to the config file are picked up live: synthesis
weights are re-applied without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), addr, noHistory)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Disable the execution history store")

	return cmd
}

func run(ctx context.Context, addr string, noHistory bool) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	if addr != "" {
		cfg.Server.Addr = addr
	}

	version, _, _ := shared.GetVersion()

	provider, err := tracing.Setup("manifold", version, tracing.Enabled(), os.Stderr)
	if err != nil {
		return shared.NewConfigError("failed to set up tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	eng, err := shared.NewEngine(cfg, logger)
	if err != nil {
		return err
	}

	var history *store.Store
	if !noHistory {
		path, err := cfg.StorePath()
		if err != nil {
			return shared.NewConfigError("failed to resolve history path", err)
		}
		history, err = store.Open(path)
		if err != nil {
			return shared.NewConfigError("failed to open history store", err)
		}
		defer history.Close()
	}

	// Hot-reload synthesis weights when the config file changes. Only weights
	// are applied live; concurrency and backend changes need a restart.
	if path := shared.ConfigFilePath(); path != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Path:   path,
			Logger: logger,
			OnReload: func(next *config.Config) {
				if err := eng.SetWeights(next.Weights); err != nil {
					logger.Warn("rejected reloaded weights", "error", err)
					return
				}
				logger.Info("applied reloaded synthesis weights")
			},
		})
		if err != nil {
			logger.Warn("config watching disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	router := server.NewRouter(server.RouterConfig{
		Engine:  eng,
		Catalog: cfg.Catalog(),
		History: history,
		Version: version,
		Logger:  logger,
	})
	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	}, router)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		return shared.NewBackendError("server failed", err)
	}
	return nil
}
