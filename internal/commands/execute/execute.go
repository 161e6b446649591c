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

// Package execute implements `manifold execute`: one prompt through the
// engine, rendered for a terminal or emitted as JSON.
package execute

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manifold-ai/manifold/internal/commands/shared"
	"github.com/manifold-ai/manifold/internal/config"
	"github.com/manifold-ai/manifold/internal/jq"
	"github.com/manifold-ai/manifold/internal/metrics"
	"github.com/manifold-ai/manifold/internal/store"
	"github.com/manifold-ai/manifold/pkg/engine"
	pkgerrors "github.com/manifold-ai/manifold/pkg/errors"
)

type options struct {
	strategy     string
	numInterface int
	numKnowledge int
	module       string
	filter       string
	contextPairs []string
	transform    string
	temperature  float64
	maxTokens    int
	noHistory    bool
}

// NewCommand creates the execute command.
func NewCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "execute [prompt]",
		Short: "Execute a prompt across multiple models",
		Long: `Execute runs one prompt through the engine under the selected strategy.

The parallel strategy (default) fans out to interface and knowledge models
concurrently and synthesizes both outputs. Use --filter to narrow candidate
models with an expression over model metadata, and --jq to transform the
result before printing.`,
		Example: `  manifold execute "Write a binary search in Go"
  manifold execute --strategy consensus "Explain CAP theorem trade-offs"
  manifold execute --filter '"code-generation" in model.tags' "Write a lexer"
  manifold execute --jq .output "Write a JSON parser"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "parallel",
		"Execution strategy: "+strings.Join(engine.StrategyNames(), ", "))
	cmd.Flags().IntVar(&opts.numInterface, "interface", 0, "Number of interface models (parallel strategy)")
	cmd.Flags().IntVar(&opts.numKnowledge, "knowledge", 0, "Number of knowledge models (parallel strategy)")
	cmd.Flags().StringVar(&opts.module, "module", "", "Task-domain hint for the backend: code_generation, documents, database, browser")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Expression to narrow candidate models (variable: model)")
	cmd.Flags().StringArrayVar(&opts.contextPairs, "context", nil, "Context key=value pairs rendered into prompts (repeatable)")
	cmd.Flags().StringVar(&opts.transform, "jq", "", "jq expression applied to the result before output")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature (0 = configured default)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Generation length limit (0 = configured default)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Skip persisting the execution to the history store")

	return cmd
}

func run(ctx context.Context, prompt string, opts *options) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	strategy, err := engine.ParseStrategy(opts.strategy, opts.numInterface, opts.numKnowledge)
	if err != nil {
		return shared.NewInvalidInputError("invalid strategy", err)
	}

	promptContext, err := parseContext(opts.contextPairs)
	if err != nil {
		return shared.NewInvalidInputError("invalid context", err)
	}

	transformer := jq.NewExecutor(0, 0)
	if err := transformer.Validate(opts.transform); err != nil {
		return shared.NewInvalidInputError("invalid jq expression", err)
	}

	eng, err := shared.NewEngine(cfg, logger)
	if err != nil {
		return err
	}

	req := engine.Request{
		Prompt:   prompt,
		Strategy: strategy,
		Filter:   opts.filter,
		Module:   opts.module,
		Context:  promptContext,
	}
	if opts.temperature > 0 || opts.maxTokens > 0 {
		params := cfg.Params()
		if opts.temperature > 0 {
			params.Temperature = opts.temperature
		}
		if opts.maxTokens > 0 {
			params.MaxTokens = opts.maxTokens
		}
		req.Params = &params
	}

	result, err := eng.Execute(ctx, req)
	if err != nil {
		var verr *pkgerrors.ValidationError
		if pkgerrors.As(err, &verr) {
			return shared.NewInvalidInputError("invalid request", err)
		}
		return shared.NewExecutionError("execution failed", err)
	}

	metrics.Observe(result)

	if !opts.noHistory {
		persist(ctx, cfg, logger, prompt, result)
	}

	if opts.transform != "" {
		return renderTransformed(ctx, transformer, opts.transform, result)
	}

	if shared.GetJSON() || !shared.IsTTY() {
		return renderJSON(result)
	}
	renderPretty(result)

	if !result.Success {
		return shared.NewExecutionError(result.Err, nil)
	}
	return nil
}

// persist saves the result to the history store. History is best-effort from
// the CLI's perspective; a broken store must not fail the execution.
func persist(ctx context.Context, cfg *config.Config, logger *slog.Logger, prompt string, result *engine.ExecutionResult) {
	path, err := cfg.StorePath()
	if err != nil {
		logger.Warn("failed to resolve history path", "error", err)
		return
	}
	s, err := store.Open(path)
	if err != nil {
		logger.Warn("failed to open history store", "error", err)
		return
	}
	defer s.Close()

	if err := s.Save(ctx, prompt, result); err != nil {
		logger.Warn("failed to persist execution", "error", err)
	}
}

func parseContext(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("context must be key=value, got %q", pair)
		}
		out[key] = value
	}
	return out, nil
}

func renderJSON(result *engine.ExecutionResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func renderTransformed(ctx context.Context, transformer *jq.Executor, expression string, result *engine.ExecutionResult) error {
	var doc interface{}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}

	transformed, err := transformer.Execute(ctx, expression, doc)
	if err != nil {
		return shared.NewInvalidInputError("transform failed", err)
	}

	// Bare strings print without quotes, everything else as JSON.
	if s, ok := transformed.(string); ok {
		fmt.Println(s)
		return nil
	}
	data, err := json.MarshalIndent(transformed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transformed result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func renderPretty(result *engine.ExecutionResult) {
	fmt.Println(shared.Header.Render("Execution " + result.ID))
	fmt.Printf("%s %s\n", shared.RenderLabel("strategy:"), result.Strategy)
	fmt.Printf("%s %s\n", shared.RenderLabel("status:"), shared.RenderStatus(result.Success, statusLabel(result.Success)))
	fmt.Printf("%s %d (%d interface, %d knowledge)\n",
		shared.RenderLabel("models:"),
		result.ModelsExecuted, len(result.InterfaceResults), len(result.KnowledgeResults))
	fmt.Printf("%s %.0fms\n", shared.RenderLabel("elapsed:"), result.Elapsed.Milliseconds())
	fmt.Printf("%s %.2fx\n", shared.RenderLabel("speedup:"), result.Speedup)
	fmt.Printf("%s %.2f\n", shared.RenderLabel("confidence:"), result.Confidence)

	for _, r := range append(append([]engine.InvocationResult{}, result.InterfaceResults...), result.KnowledgeResults...) {
		line := fmt.Sprintf("%s (%s) %.0fms", r.ModelID, r.Class, r.Elapsed.Milliseconds())
		if r.Success {
			fmt.Println("  " + shared.RenderOK(line))
		} else {
			fmt.Println("  " + shared.RenderError(line+" — "+r.Err))
		}
	}

	fmt.Println()
	if result.Success {
		fmt.Println(result.Output)
	} else {
		fmt.Println(shared.RenderError(result.Err))
	}
}

func statusLabel(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAIL"
}
