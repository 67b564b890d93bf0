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

package cloud_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewConfigDefaults(t *testing.T) {
	config := cloud.NewConfig()
	assert.Equal(t, 5, config.Pipeline.MaxFramesPerChunk)
	assert.Equal(t, 3, config.LLM.RetryBudget)
	assert.Equal(t, "none", config.Telemetry.Exporter)
	assert.Contains(t, config.AgentModels, cloud.DefaultAgentModel)
	assert.Equal(t, int64(500), config.Pipeline.TrailingSlack().Milliseconds())
	assert.Equal(t, float64(120), config.LLM.Timeout().Seconds())
}

func TestLoadConfigLayering(t *testing.T) {
	dir := t.TempDir()
	base := `
[application]
google_project_id = "base-project"
thread_pool_size = 8

[pipeline]
max_frames_per_chunk = 4

[[io_pairs]]
input_dir = "/data/in"
output_dir = "/data/out"
`
	runtime := `
[application]
google_project_id = "test-project"

[agent_models.logo]
model = "gemini-2.0-pro"
rate_limit = 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(base), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test.toml"), []byte(runtime), 0o600))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "test")

	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))

	assert.Equal(t, "test-project", config.Application.GoogleProjectId)
	assert.Equal(t, 8, config.Application.ThreadPoolSize)
	assert.Equal(t, 4, config.Pipeline.MaxFramesPerChunk)
	assert.Equal(t, 24, config.Pipeline.CandidatePoolSize)
	require.Len(t, config.IOPairs, 1)
	assert.Equal(t, "/data/out", config.IOPairs[0].OutputDir)
	assert.Equal(t, "gemini-2.0-pro", config.AgentModels["logo"].Model)
	assert.Contains(t, config.AgentModels, cloud.DefaultAgentModel)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigReportsDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(file, []byte("[application\nname="), 0o600))
	assert.Error(t, cloud.LoadConfigFiles(cloud.NewConfig(), file))
	assert.NoError(t, cloud.LoadConfigFiles(cloud.NewConfig(), filepath.Join(dir, "missing.toml")))
}

func TestValidate(t *testing.T) {
	config := cloud.NewConfig()
	assert.Error(t, config.Validate(), "vertex backend needs a project")

	config.Application.GoogleProjectId = "p"
	assert.NoError(t, config.Validate())

	config.Application.AgentModel = "missing"
	config.Pipeline.CandidatePoolSize = 1
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.Contains(t, err.Error(), "candidate_pool_size")
}

func TestNeedsStorage(t *testing.T) {
	config := cloud.NewConfig()
	assert.False(t, config.NeedsStorage())
	config.IOPairs = []cloud.IOPair{{InputDir: "gs://bucket/videos", OutputDir: "/tmp/out"}}
	assert.True(t, config.NeedsStorage())

	config = cloud.NewConfig()
	config.Logo.ReferenceImages = []string{"/logos/a.png", "gs://brand/b.png"}
	assert.True(t, config.NeedsStorage())
}

func TestLogoReferences(t *testing.T) {
	logo := cloud.Logo{
		ReferenceImage:  "/logos/main.png",
		ReferenceImages: []string{" ", "/logos/dark.png", "/logos/main.png", "gs://brand/mono.png"},
	}
	assert.Equal(t, []string{"/logos/main.png", "/logos/dark.png", "gs://brand/mono.png"}, logo.References())
	assert.Empty(t, cloud.Logo{}.References())
}

func TestParseGCSURI(t *testing.T) {
	obj, err := cloud.ParseGCSURI("gs://media/in/lecture.mp4")
	require.NoError(t, err)
	assert.Equal(t, "media", obj.Bucket)
	assert.Equal(t, "in/lecture.mp4", obj.Name)
	assert.Equal(t, "gs://media/in/lecture.mp4", obj.URI())

	obj, err = cloud.ParseGCSURI("gs://media")
	require.NoError(t, err)
	assert.Empty(t, obj.Name)

	_, err = cloud.ParseGCSURI("/local/file")
	assert.Error(t, err)
	_, err = cloud.ParseGCSURI("gs:///name")
	assert.Error(t, err)

	assert.Equal(t, "reports/lecture/a.json", cloud.JoinObjectName("/reports", "lecture", "a.json"))
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: `{"a":`}, {Text: `1}`}}}},
		},
	}
	text, err := cloud.ResponseText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)

	_, err = cloud.ResponseText(&genai.GenerateContentResponse{})
	assert.Error(t, err)
	_, err = cloud.ResponseText(nil)
	assert.Error(t, err)
}

func TestNewGenerateContentConfig(t *testing.T) {
	cfg := cloud.NewGenerateContentConfig(cloud.VertexAiLLMModel{Temperature: 0.3, MaxTokens: 100, OutputFormat: "application/json"})
	assert.Equal(t, float32(0.3), *cfg.Temperature)
	assert.Equal(t, int32(100), cfg.MaxOutputTokens)
	assert.Nil(t, cfg.SystemInstruction)
	assert.Equal(t, cloud.DefaultSafetySettings, cfg.SafetySettings)
}
