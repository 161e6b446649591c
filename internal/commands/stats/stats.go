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

// Package stats implements `manifold stats`: aggregate execution statistics
// from the history store.
package stats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manifold-ai/manifold/internal/commands/shared"
	"github.com/manifold-ai/manifold/internal/store"
)

// Summary aggregates ledger-style statistics over persisted executions.
type Summary struct {
	TotalExecutions    int     `json:"total_executions"`
	ParallelExecutions int     `json:"parallel_executions"`
	SingleExecutions   int     `json:"single_executions"`
	AverageSpeedup     float64 `json:"average_speedup"`
	TotalTimeSavedMS   float64 `json:"total_time_saved_ms"`

	Recent []*store.Record `json:"recent"`
}

// NewCommand creates the stats command.
func NewCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show execution statistics",
		Long: `Stats aggregates the persisted execution history: totals, the running
average speedup, and the estimated time saved versus sequential execution.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "recent", 10, "Number of recent executions to show")

	return cmd
}

func run(ctx context.Context, limit int) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	path, err := cfg.StorePath()
	if err != nil {
		return shared.NewConfigError("failed to resolve history path", err)
	}
	s, err := store.Open(path)
	if err != nil {
		return shared.NewConfigError("failed to open history store", err)
	}
	defer s.Close()

	summary, err := aggregate(ctx, s, limit)
	if err != nil {
		return shared.NewExecutionError("failed to aggregate statistics", err)
	}

	if shared.GetJSON() || !shared.IsTTY() {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	render(summary)
	return nil
}

// aggregate folds persisted records into ledger-style counters. The store
// holds full per-execution rows, so the mean and saved-time figures are
// recomputed rather than carried incrementally.
func aggregate(ctx context.Context, s *store.Store, limit int) (*Summary, error) {
	// A large page covers typical local history; statistics beyond it would
	// need a SQL aggregate instead.
	records, err := s.List(ctx, 10000)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	var speedupSum float64

	for _, rec := range records {
		summary.TotalExecutions++
		if rec.Models > 1 {
			summary.ParallelExecutions++
		} else {
			summary.SingleExecutions++
		}
		speedupSum += rec.Speedup
		summary.TotalTimeSavedMS += rec.ElapsedMS*rec.Speedup - rec.ElapsedMS
	}
	if summary.TotalExecutions > 0 {
		summary.AverageSpeedup = speedupSum / float64(summary.TotalExecutions)
	}

	if limit > len(records) {
		limit = len(records)
	}
	summary.Recent = records[:limit]

	return summary, nil
}

func render(summary *Summary) {
	fmt.Println(shared.Header.Render("Execution Statistics"))
	fmt.Printf("%s %d\n", shared.RenderLabel("total executions:"), summary.TotalExecutions)
	fmt.Printf("%s %d\n", shared.RenderLabel("parallel:"), summary.ParallelExecutions)
	fmt.Printf("%s %d\n", shared.RenderLabel("single-model:"), summary.SingleExecutions)
	fmt.Printf("%s %.2fx\n", shared.RenderLabel("average speedup:"), summary.AverageSpeedup)
	fmt.Printf("%s %.0fms\n", shared.RenderLabel("time saved:"), summary.TotalTimeSavedMS)

	if len(summary.Recent) == 0 {
		return
	}

	fmt.Println()
	fmt.Println(shared.Header.Render("Recent Executions"))
	for _, rec := range summary.Recent {
		line := fmt.Sprintf("%s %s %dm %.0fms %.2fx  %s",
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Strategy, rec.Models, rec.ElapsedMS, rec.Speedup,
			truncate(rec.Prompt, 60))
		if rec.Success {
			fmt.Println("  " + shared.RenderOK(line))
		} else {
			fmt.Println("  " + shared.RenderError(line))
		}
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
