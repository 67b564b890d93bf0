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
	goctx "context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// GCSToTempFile materialises gs:// video and transcript paths of a job as
// local temp files, since ffmpeg and the transcript parser read from disk.
// The temp files are registered with the context and removed when it closes.
// Jobs with only local paths skip this command.
type GCSToTempFile struct {
	cor.BaseCommand
	client         *storage.Client
	tempFilePrefix string
}

func NewGCSToTempFile(name string, client *storage.Client, tempFilePrefix string) *GCSToTempFile {
	return &GCSToTempFile{
		BaseCommand:    *cor.NewBaseCommand(name),
		client:         client,
		tempFilePrefix: tempFilePrefix,
	}
}

func (c *GCSToTempFile) IsExecutable(context cor.Context) bool {
	if !c.BaseCommand.IsExecutable(context) {
		return false
	}
	job, ok := context.Get(c.GetInputParam()).(*model.VideoJob)
	return ok && (cloud.IsGCSURI(job.VideoPath) || cloud.IsGCSURI(job.TranscriptPath))
}

func (c *GCSToTempFile) Execute(context cor.Context) {
	job := context.Get(c.GetInputParam()).(*model.VideoJob)
	if c.client == nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("%w: %s reads from Cloud Storage but no storage client is configured", model.ErrInvalidJob, job.Name))
		return
	}

	local := *job
	for _, p := range []*string{&local.VideoPath, &local.TranscriptPath} {
		if !cloud.IsGCSURI(*p) {
			continue
		}
		obj, err := cloud.ParseGCSURI(*p)
		if err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(c.GetName(), fmt.Errorf("%w: %w", model.ErrInvalidJob, err))
			return
		}
		file, err := c.download(context.GetContext(), obj)
		if file != "" {
			context.AddTempFile(file)
		}
		if err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(c.GetName(), err)
			return
		}
		*p = file
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(ParamJob, &local)
	context.Add(c.GetOutputParam(), &local)
}

// download streams obj into a new temp file that keeps the object's
// extension. The returned name is set whenever a file was created.
func (c *GCSToTempFile) download(ctx goctx.Context, obj cloud.GCSObject) (string, error) {
	reader, err := c.client.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create GCS reader for %s: %w", obj.URI(), err)
	}
	defer func(reader *storage.Reader) {
		if err := reader.Close(); err != nil {
			slog.Warn("failed to close GCS reader", "object", obj.URI(), "error", err)
		}
	}(reader)

	tempFile, err := os.CreateTemp("", c.tempFilePrefix+"*"+path.Ext(obj.Name))
	if err != nil {
		return "", fmt.Errorf("could not create temp file: %w", err)
	}
	written, err := io.Copy(tempFile, reader)
	_ = tempFile.Close()
	if err != nil {
		return tempFile.Name(), fmt.Errorf("copying %s after %d bytes: %w", obj.URI(), written, err)
	}

	slog.Info("downloaded object", "object", obj.URI(), "file", tempFile.Name(), "bytes", written)
	return tempFile.Name(), nil
}
