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

// Package history implements `manifold history`: list and inspect persisted
// executions.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/manifold-ai/manifold/internal/commands/shared"
	"github.com/manifold-ai/manifold/internal/store"
)

// NewCommand creates the history command with its subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect persisted executions",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newPruneCommand())

	return cmd
}

func openStore() (*store.Store, error) {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return nil, err
	}
	path, err := cfg.StorePath()
	if err != nil {
		return nil, shared.NewConfigError("failed to resolve history path", err)
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, shared.NewConfigError("failed to open history store", err)
	}
	return s, nil
}

func newListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum executions to list")

	return cmd
}

func runList(ctx context.Context, limit int) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.List(ctx, limit)
	if err != nil {
		return shared.NewExecutionError("failed to list history", err)
	}

	if shared.GetJSON() || !shared.IsTTY() {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		fmt.Println(shared.Muted.Render("no executions recorded"))
		return nil
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %s  %s  %.2fx  %s",
			rec.ID[:8],
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Strategy, rec.Speedup,
			truncate(rec.Prompt, 50))
		if rec.Success {
			fmt.Println(shared.RenderOK(line))
		} else {
			fmt.Println(shared.RenderError(line))
		}
	}
	return nil
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <execution-id>",
		Short: "Show one execution's full result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), args[0])
		},
	}
}

func runShow(ctx context.Context, id string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return shared.NewInvalidInputError("execution not found", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func newPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete executions older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), olderThan)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Retention window")

	return cmd
}

func runPrune(ctx context.Context, olderThan time.Duration) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.Prune(ctx, olderThan)
	if err != nil {
		return shared.NewExecutionError("failed to prune history", err)
	}

	fmt.Println(shared.RenderOK(fmt.Sprintf("removed %d executions", removed)))
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
