// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigLayersFilesAndFlags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(`
[application]
google_project_id = "demo"
video_workers = 4

[[io_pairs]]
input_dir = "videos"
output_dir = "reports"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.ci.toml"), []byte(`
[llm]
retry_budget = 5
`), 0o644))
	t.Setenv(cloud.EnvConfigFilePrefix, "")
	t.Setenv(cloud.EnvConfigRuntime, "")

	config, err := GetConfig(&options{configPrefix: dir, runtime: "ci", logLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "demo", config.Application.GoogleProjectId)
	assert.Equal(t, 4, config.Application.VideoWorkers)
	assert.Equal(t, 5, config.LLM.RetryBudget)
	assert.Equal(t, 5, config.Pipeline.MaxFramesPerChunk)
	assert.Equal(t, "debug", config.Telemetry.LogLevel)
	assert.Equal(t, []cloud.IOPair{{InputDir: "videos", OutputDir: "reports"}}, config.IOPairs)

	config, err = GetConfig(&options{configPrefix: dir, inputDir: "in", outputDir: "out"})
	require.NoError(t, err)
	assert.Equal(t, []cloud.IOPair{{InputDir: "in", OutputDir: "out"}}, config.IOPairs)

	_, err = GetConfig(&options{configPrefix: dir, inputDir: "in"})
	assert.Error(t, err)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"run", "logos", "serve"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	run, _, _ := root.Find([]string{"run"})
	assert.NotNil(t, run.Flags().Lookup("input"))
}
