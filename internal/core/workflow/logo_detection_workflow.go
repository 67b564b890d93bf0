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

package workflow

import (
	"context"
	"fmt"
	"path"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/commands"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
)

// LogoDetectionWorkflow checks every chunk's keyframes of one video for the
// configured reference logo and writes the logo report.
type LogoDetectionWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

func (w *LogoDetectionWorkflow) IsExecutable(context cor.Context) bool {
	return w.chain.IsExecutable(context)
}

func (w *LogoDetectionWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// loadReference reads the reference logo from disk or, for a gs:// uri,
// from Cloud Storage.
func loadReference(ctx context.Context, deps *Dependencies, location string) (llm.Image, error) {
	if !cloud.IsGCSURI(location) {
		return commands.LoadReferenceImage(location)
	}
	if deps.StorageClient == nil {
		return llm.Image{}, fmt.Errorf("%s needs a storage client", location)
	}
	obj, err := cloud.ParseGCSURI(location)
	if err != nil {
		return llm.Image{}, err
	}
	data, err := cloud.ReadGCSObject(ctx, deps.StorageClient, obj)
	if err != nil {
		return llm.Image{}, err
	}
	return commands.ReferenceImage(data, location)
}

func NewLogoDetectionWorkflow(ctx context.Context, deps *Dependencies) (*LogoDetectionWorkflow, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	config := deps.Config
	locations := config.Logo.References()
	if len(locations) == 0 {
		return nil, fmt.Errorf("logo detection needs logo.reference_image or logo.reference_images")
	}
	references := make([]commands.LogoReference, 0, len(locations))
	for _, location := range locations {
		image, err := loadReference(ctx, deps, location)
		if err != nil {
			return nil, err
		}
		references = append(references, commands.LogoReference{Name: path.Base(location), Image: image})
	}
	logoTemplate, err := parseTemplate("logo", config.PromptTemplates.LogoPrompt, cloud.DefaultLogoPrompt)
	if err != nil {
		return nil, err
	}

	chain := cor.NewBaseChain("logo-detection")
	chain.AddCommand(commands.NewJobReader("read-job"))
	chain.AddCommand(commands.NewGCSToTempFile("gcs-to-temp-file", deps.StorageClient, "logo-detection-"))
	chain.AddCommand(commands.NewTranscriptReader("read-transcript"))
	chain.AddCommand(commands.NewTimelineIndexer("index-timeline"))
	chain.AddCommand(commands.NewKeyframeExtractor("extract-keyframes", deps.sampler(), deps.selector(),
		config.Pipeline.MaxFramesPerChunk, false))
	chain.AddCommand(commands.NewMediaCleanup("cleanup-media"))
	chain.AddCommand(commands.NewLogoDetector("detect-logos", deps.logoCapability(), logoTemplate, references,
		config.Application.ThreadPoolSize, deps.chunkPolicy()))
	chain.AddCommand(commands.NewReportWriter("write-logo-report", config.Logo.ReportSuffix))
	chain.AddCommand(commands.NewGCSReportUpload("upload-logo-report", deps.StorageClient,
		config.Storage.ReportBucket, config.Storage.ReportPrefix))

	return &LogoDetectionWorkflow{
		BaseCommand: *cor.NewBaseCommand("logo-detection-workflow"),
		chain:       chain,
	}, nil
}
