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

// Package models implements `manifold models`: inspect the model catalog.
package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manifold-ai/manifold/internal/commands/shared"
	"github.com/manifold-ai/manifold/pkg/catalog"
)

// NewCommand creates the models command.
func NewCommand() *cobra.Command {
	var (
		class  string
		filter string
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Long: `Models lists the configured model catalog. Use --class to show one
model class, or --filter with an expression over model metadata.`,
		Example: `  manifold models
  manifold models --class knowledge
  manifold models --filter 'model.context_window >= 16384'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(class, filter)
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "Filter by model class (interface, knowledge, embedding, specialized)")
	cmd.Flags().StringVar(&filter, "filter", "", "Expression to filter models (variable: model)")

	return cmd
}

func run(class, filter string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	cat := cfg.Catalog()

	var models []catalog.ModelDescriptor
	if class != "" {
		c := catalog.Class(class)
		if !c.Valid() {
			return shared.NewInvalidInputError(fmt.Sprintf("unknown model class %q", class), nil)
		}
		models = cat.ListByClass(c)
	} else {
		models = cat.List()
	}

	if filter != "" {
		models, err = catalog.NewSelector().Filter(filter, models)
		if err != nil {
			return shared.NewInvalidInputError("invalid filter expression", err)
		}
	}

	if shared.GetJSON() || !shared.IsTTY() {
		data, err := json.MarshalIndent(models, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal models: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(models) == 0 {
		fmt.Println(shared.Muted.Render("no models match"))
		return nil
	}

	fmt.Println(shared.Header.Render(fmt.Sprintf("Models (%d)", len(models))))
	for _, m := range models {
		fmt.Printf("%s %s\n", shared.Bold.Render(m.ID), shared.Muted.Render(m.Name))
		fmt.Printf("  %s %s", shared.RenderLabel("class:"), m.Class)
		if m.Parameters != "" {
			fmt.Printf("  %s %s", shared.RenderLabel("params:"), m.Parameters)
		}
		if m.ContextWindow > 0 {
			fmt.Printf("  %s %d", shared.RenderLabel("context:"), m.ContextWindow)
		}
		fmt.Println()
		if len(m.Tags) > 0 {
			fmt.Printf("  %s %s\n", shared.RenderLabel("tags:"), strings.Join(m.Tags, ", "))
		}
	}
	return nil
}
