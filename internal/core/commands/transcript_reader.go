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

package commands

import (
	"log/slog"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/timeline"
)

// TranscriptReader parses the job's SRT or WebVTT transcript into entries.
type TranscriptReader struct {
	cor.BaseCommand
}

func NewTranscriptReader(name string) *TranscriptReader {
	return &TranscriptReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *TranscriptReader) Execute(context cor.Context) {
	job := context.Get(c.GetInputParam()).(*model.VideoJob)

	entries, err := timeline.ParseFile(job.TranscriptPath)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}

	slog.Debug("transcript parsed", "video", job.Name, "entries", len(entries))
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(ParamTranscript, entries)
	context.Add(c.GetOutputParam(), entries)
}

// TimelineIndexer partitions transcript entries into chunks.
type TimelineIndexer struct {
	cor.BaseCommand
}

func NewTimelineIndexer(name string) *TimelineIndexer {
	return &TimelineIndexer{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *TimelineIndexer) Execute(context cor.Context) {
	entries := context.Get(c.GetInputParam()).([]model.TranscriptEntry)

	chunks, err := timeline.Index(entries)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}

	coverage := timeline.Coverage(chunks)
	slog.Info("timeline indexed", "video", jobName(context), "chunks", len(chunks), "coverage", coverage.String())
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(ParamChunks, chunks)
	context.Add(c.GetOutputParam(), chunks)
}

// jobName returns the current video's name for log attributes.
func jobName(context cor.Context) string {
	if job, ok := context.Get(ParamJob).(*model.VideoJob); ok {
		return job.Name
	}
	return ""
}
