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

package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "EVAL_CONFIG_PREFIX" // directory holding the config files
	EnvConfigRuntime    = "EVAL_RUNTIME"       // runtime name, e.g. "local", "test", "prod"
	DefaultRuntime      = "local"
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and runtime configuration file names derived
// from the environment, in the order they are applied.
func ConfigFiles() (base string, runtime string) {
	prefix := os.Getenv(EnvConfigFilePrefix)
	env := os.Getenv(EnvConfigRuntime)
	if env == "" {
		env = DefaultRuntime
	}
	base = filepath.Join(prefix, ConfigFileBaseName+ConfigFileExtension)
	runtime = filepath.Join(prefix, ConfigFileBaseName+ConfigSeparator+env+ConfigFileExtension)
	return base, runtime
}

// LoadConfig decodes the base configuration file and then the runtime file
// on top of baseConfig. Missing files are skipped; keys absent from a file
// keep their current value, so defaults set by NewConfig survive.
func LoadConfig(baseConfig any) error {
	base, runtime := ConfigFiles()
	return LoadConfigFiles(baseConfig, base, runtime)
}

// LoadConfigFiles applies each existing file in order.
func LoadConfigFiles(baseConfig any, files ...string) error {
	for _, file := range files {
		if !fileExists(file) {
			slog.Debug("configuration file not found, skipping", "file", file)
			continue
		}
		if _, err := toml.DecodeFile(file, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", file, err)
		}
		slog.Debug("configuration file applied", "file", file)
	}
	return nil
}

// Validate checks the settings every workflow depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Application.Backend != BackendVertex && c.Application.Backend != BackendGemini {
		errs = append(errs, fmt.Errorf("application.backend must be %q or %q", BackendVertex, BackendGemini))
	}
	if c.Application.Backend == BackendVertex && c.Application.GoogleProjectId == "" {
		errs = append(errs, errors.New("application.google_project_id is required for the vertex backend"))
	}
	for _, name := range []string{c.Application.AgentModel, c.Application.LogoAgentModel} {
		if _, ok := c.AgentModels[name]; !ok {
			errs = append(errs, fmt.Errorf("agent model %q is not configured", name))
		}
	}
	if c.Pipeline.MaxFramesPerChunk < 1 {
		errs = append(errs, errors.New("pipeline.max_frames_per_chunk must be at least 1"))
	}
	if c.Pipeline.CandidatePoolSize < c.Pipeline.MaxFramesPerChunk {
		errs = append(errs, errors.New("pipeline.candidate_pool_size must be at least max_frames_per_chunk"))
	}
	if c.LLM.RetryBudget < 1 {
		errs = append(errs, errors.New("llm.retry_budget must be at least 1"))
	}
	if c.Application.ThreadPoolSize < 1 || c.Application.VideoWorkers < 1 {
		errs = append(errs, errors.New("application.thread_pool_size and video_workers must be at least 1"))
	}
	return errors.Join(errs...)
}

// ResponseText concatenates the text parts of every candidate.
func ResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("empty response")
	}
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("response contained no text")
	}
	return sb.String(), nil
}
