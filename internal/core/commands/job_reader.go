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
	"fmt"
	"log/slog"
	"os"

	"github.com/h2non/filetype"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// JobReader validates a *model.VideoJob and publishes it under ParamJob.
// Local videos are sniffed by content so a mislabelled file fails here
// instead of deep inside ffmpeg.
type JobReader struct {
	cor.BaseCommand
}

func NewJobReader(name string) *JobReader {
	return &JobReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *JobReader) Execute(context cor.Context) {
	job, ok := context.Get(c.GetInputParam()).(*model.VideoJob)
	if !ok {
		c.fail(context, fmt.Errorf("%w: input is %T", model.ErrInvalidJob, context.Get(c.GetInputParam())))
		return
	}
	if job.VideoPath == "" || job.TranscriptPath == "" {
		c.fail(context, fmt.Errorf("%w: %s needs both a video and a transcript", model.ErrInvalidJob, job.Name))
		return
	}
	if job.OutputDir == "" {
		c.fail(context, fmt.Errorf("%w: %s has no output directory", model.ErrInvalidJob, job.Name))
		return
	}

	if !cloud.IsGCSURI(job.VideoPath) {
		if err := checkVideo(job.VideoPath); err != nil {
			c.fail(context, fmt.Errorf("%w: %w", model.ErrInvalidJob, err))
			return
		}
	}
	if !cloud.IsGCSURI(job.TranscriptPath) {
		if _, err := os.Stat(job.TranscriptPath); err != nil {
			c.fail(context, fmt.Errorf("%w: transcript: %w", model.ErrInvalidJob, err))
			return
		}
	}

	slog.Info("video job accepted", "video", job.Name, "id", job.Id, "source", job.VideoPath)
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(ParamJob, job)
	context.Add(c.GetOutputParam(), job)
}

func (c *JobReader) fail(context cor.Context, err error) {
	c.GetErrorCounter().Add(context.GetContext(), 1)
	context.AddError(c.GetName(), err)
}

// checkVideo confirms path exists and its header is a known video container.
func checkVideo(path string) error {
	kind, err := filetype.MatchFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if kind == filetype.Unknown || kind.MIME.Type != "video" {
		return fmt.Errorf("%s is not a video (detected %q)", path, kind.MIME.Value)
	}
	return nil
}
