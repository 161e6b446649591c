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

package main

import (
	"github.com/manifold-ai/manifold/internal/commands"
	"github.com/manifold-ai/manifold/internal/commands/execute"
	"github.com/manifold-ai/manifold/internal/commands/history"
	"github.com/manifold-ai/manifold/internal/commands/models"
	"github.com/manifold-ai/manifold/internal/commands/serve"
	"github.com/manifold-ai/manifold/internal/commands/stats"
	versioncmd "github.com/manifold-ai/manifold/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	commands.SetVersion(version, commit, buildDate)

	rootCmd := commands.NewRootCommand()

	rootCmd.AddCommand(execute.NewCommand())
	rootCmd.AddCommand(stats.NewCommand())
	rootCmd.AddCommand(history.NewCommand())
	rootCmd.AddCommand(models.NewCommand())
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(versioncmd.NewCommand())

	rootCmd.SetHelpCommand(commands.NewHelpCommand(rootCmd))

	if err := rootCmd.Execute(); err != nil {
		commands.HandleExitError(err)
	}
}
