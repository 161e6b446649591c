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

// Package commands assembles the manifold CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/manifold-ai/manifold/internal/commands/shared"
)

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for manifold.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifold",
		Short: "Manifold - multi-context LLM execution",
		Long: `Manifold fans a single prompt out to multiple LLMs of different
classes concurrently and synthesizes their outputs into one answer.

Interface-class models generate the primary response while knowledge-class
models retrieve supporting context in parallel; the combined result carries
a class-weighted confidence and a measured concurrency gain.

Run 'manifold execute "your prompt"' to get started.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/manifold/config.yaml)")

	return cmd
}

// HandleExitError handles exit errors with proper exit codes.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
