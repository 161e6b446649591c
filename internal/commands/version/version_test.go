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

package version

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/manifold-ai/manifold/internal/commands/shared"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewCommand()

	require.Equal(t, "version", cmd.Use)
	require.NotEmpty(t, cmd.Short)
}

func TestVersionOutput(t *testing.T) {
	shared.SetVersion("1.0.0", "test123", "2026-08-01")
	defer shared.SetVersion("dev", "unknown", "unknown")

	cmd := NewCommand()

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	require.Contains(t, buf.String(), "1.0.0")
	require.Contains(t, buf.String(), "test123")
}

func TestVersionJSONOutput(t *testing.T) {
	shared.SetVersion("1.0.0", "test123", "2026-08-01")
	defer shared.SetVersion("dev", "unknown", "unknown")

	rootCmd := &cobra.Command{Use: "test"}
	_, _, jsonPtr, _ := shared.RegisterFlagPointers()
	rootCmd.PersistentFlags().BoolVar(jsonPtr, "json", false, "JSON output")

	cmd := NewCommand()
	rootCmd.AddCommand(cmd)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	cmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version", "--json"})

	require.NoError(t, rootCmd.Execute())

	var info VersionInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	require.Equal(t, "1.0.0", info.Version)
	require.Equal(t, "test123", info.Commit)
	require.Equal(t, "2026-08-01", info.BuildDate)
}
