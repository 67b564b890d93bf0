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

// Package workflow assembles the commands into per-video chains and runs
// them over a batch of videos.
package workflow

import (
	"fmt"
	"text/template"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/frames"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/keyframe"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
)

// Dependencies are the collaborators the workflows run against. Storage and
// BigQuery clients are optional; the commands that need them are skipped
// when they are nil.
type Dependencies struct {
	Config         *cloud.Config
	Capability     llm.Capability // rubric scoring and synthesis
	LogoCapability llm.Capability // logo detection, Capability when nil
	Decoder        frames.Decoder
	StorageClient  *storage.Client
	BigQueryClient *bigquery.Client
}

// NewDependencies resolves the configured agent models and the ffmpeg
// decoder from the service clients.
func NewDependencies(config *cloud.Config, clients *cloud.ServiceClients) (*Dependencies, error) {
	evaluator, err := clients.Model(config.Application.AgentModel)
	if err != nil {
		return nil, err
	}
	logo, err := clients.Model(config.Application.LogoAgentModel)
	if err != nil {
		return nil, err
	}
	return &Dependencies{
		Config:         config,
		Capability:     evaluator,
		LogoCapability: logo,
		Decoder:        frames.NewFFmpegDecoder(config.Pipeline.FFmpegPath, config.Pipeline.FFprobePath),
		StorageClient:  clients.StorageClient,
		BigQueryClient: clients.BigQueryClient,
	}, nil
}

func (d *Dependencies) logoCapability() llm.Capability {
	if d.LogoCapability != nil {
		return d.LogoCapability
	}
	return d.Capability
}

func (d *Dependencies) validate() error {
	switch {
	case d == nil || d.Config == nil:
		return fmt.Errorf("workflow needs a configuration")
	case d.Capability == nil:
		return fmt.Errorf("workflow needs an LLM capability")
	case d.Decoder == nil:
		return fmt.Errorf("workflow needs a frame decoder")
	}
	return nil
}

func (d *Dependencies) sampler() *frames.Sampler {
	p := d.Config.Pipeline
	return frames.NewSampler(d.Decoder, frames.SamplerOptions{
		PoolSize:      p.CandidatePoolSize,
		Width:         p.FrameWidth,
		TrailingSlack: p.TrailingSlack(),
	})
}

func (d *Dependencies) selector() *keyframe.Selector {
	p := d.Config.Pipeline
	return keyframe.NewSelector(keyframe.Options{
		Bins:              p.HistogramBins,
		HistogramWeight:   p.HistogramWeight,
		LuvWeight:         p.LuvWeight,
		DistinctThreshold: p.DistinctThreshold,
		JPEGQuality:       p.JPEGQuality,
	})
}

func (d *Dependencies) chunkPolicy() llm.Policy {
	l := d.Config.LLM
	return llm.Policy{Attempts: l.RetryBudget, Timeout: l.Timeout(), Backoff: l.Backoff()}
}

func (d *Dependencies) synthesisPolicy() llm.Policy {
	l := d.Config.LLM
	return llm.Policy{Attempts: l.RetryBudget, Timeout: l.SynthesisTimeout(), Backoff: l.Backoff()}
}

// parseTemplate parses override, or def when override is empty.
func parseTemplate(name, override, def string) (*template.Template, error) {
	src := override
	if src == "" {
		src = def
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s prompt: %w", name, err)
	}
	return tmpl, nil
}
