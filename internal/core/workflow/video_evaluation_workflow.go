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
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/commands"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
)

// VideoEvaluationWorkflow scores one video and writes its reports. The input
// is a *model.VideoJob under cor.CtxIn.
//
//	job -> transcript -> chunks -> keyframes -> chunk evaluations
//	    -> final report -> report files -> (Cloud Storage, BigQuery)
type VideoEvaluationWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

func (w *VideoEvaluationWorkflow) IsExecutable(context cor.Context) bool {
	return w.chain.IsExecutable(context)
}

func (w *VideoEvaluationWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func NewVideoEvaluationWorkflow(deps *Dependencies) (*VideoEvaluationWorkflow, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	config := deps.Config
	rubricTemplate, err := parseTemplate("rubric", config.PromptTemplates.RubricPrompt, cloud.DefaultRubricPrompt)
	if err != nil {
		return nil, err
	}
	synthesisTemplate, err := parseTemplate("synthesis", config.PromptTemplates.SynthesisPrompt, cloud.DefaultSynthesisPrompt)
	if err != nil {
		return nil, err
	}

	chain := cor.NewBaseChain("video-evaluation")
	chain.AddCommand(commands.NewJobReader("read-job"))
	chain.AddCommand(commands.NewGCSToTempFile("gcs-to-temp-file", deps.StorageClient, "video-evaluation-"))
	chain.AddCommand(commands.NewTranscriptReader("read-transcript"))
	chain.AddCommand(commands.NewTimelineIndexer("index-timeline"))
	chain.AddCommand(commands.NewKeyframeExtractor("extract-keyframes", deps.sampler(), deps.selector(),
		config.Pipeline.MaxFramesPerChunk, config.Pipeline.WriteKeyframes))
	chain.AddCommand(commands.NewMediaCleanup("cleanup-media"))
	chain.AddCommand(commands.NewChunkEvaluator("evaluate-chunks", deps.Capability, rubricTemplate,
		config.Application.ThreadPoolSize, deps.chunkPolicy()))
	chain.AddCommand(commands.NewReportAggregator("aggregate-report", deps.Capability, synthesisTemplate, deps.synthesisPolicy()))
	chain.AddCommand(commands.NewReportWriter("write-reports", config.Logo.ReportSuffix))
	chain.AddCommand(commands.NewGCSReportUpload("upload-reports", deps.StorageClient,
		config.Storage.ReportBucket, config.Storage.ReportPrefix))
	chain.AddCommand(commands.NewReportPersistToBigQuery("write-to-bigquery", deps.BigQueryClient,
		config.BigQueryDataSource.DatasetName, config.BigQueryDataSource.ScoreTable, config.BigQueryDataSource.RecommendationTable))

	return &VideoEvaluationWorkflow{
		BaseCommand: *cor.NewBaseCommand("video-evaluation-workflow"),
		chain:       chain,
	}, nil
}
